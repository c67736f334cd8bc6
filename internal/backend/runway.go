package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/task"
)

const (
	runwayDefaultBase = "https://api.dev.runwayml.com"
	runwayAPIVersion  = "2024-11-06"

	runwayPollInterval = 5 * time.Second
	runwayMaxAttempts  = 120
)

// runwayStatuses maps the backend's raw status vocabulary to canonical
// states. THROTTLED is the backend's own queue backpressure, not a caller
// fault, so it keeps polling.
var runwayStatuses = task.Vocabulary{
	"PENDING":   task.StatusRunning,
	"THROTTLED": task.StatusRunning,
	"RUNNING":   task.StatusRunning,
	"SUCCEEDED": task.StatusSucceeded,
	"FAILED":    task.StatusFailed,
	"CANCELLED": task.StatusFailed,
}

// Runway serves asynchronous image-to-video generation.
type Runway struct {
	base
}

// NewRunway creates the Runway adapter.
func NewRunway(opts ...Option) *Runway {
	return &Runway{base: newBase(provider.NameRunway, opts...)}
}

// Capabilities implements Adapter.
func (a *Runway) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityVideo}
}

// RefForm implements Adapter. promptImage accepts data URIs.
func (a *Runway) RefForm() asset.Form { return asset.FormInline }

func runwayHeaders(key string) map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + key,
		"X-Runway-Version": runwayAPIVersion,
	}
}

type runwaySubmitRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage"`
	PromptText  string `json:"promptText,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
}

type runwaySubmitResponse struct {
	ID string `json:"id"`
}

type runwayStatusResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Failure string   `json:"failure"`
}

// SubmitVideo implements VideoSubmitter.
func (a *Runway) SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityVideo, runwayDefaultBase)

	promptImage := req.Start.URL
	if req.Start.Data != "" {
		promptImage = req.Start.DataURI()
	}

	payload := runwaySubmitRequest{
		Model:       cfg.Model,
		PromptImage: promptImage,
		PromptText:  req.Prompt,
		Duration:    req.Duration,
		Ratio:       req.AspectRatio,
	}

	headers := runwayHeaders(cfg.APIKey)

	var resp runwaySubmitResponse
	err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodPost, cfg.BaseURL+"/v1/image_to_video", headers, payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.ID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no task id returned")
	}

	statusURL := cfg.BaseURL + "/v1/tasks/" + resp.ID
	logger := a.logger

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityVideo),
		ID:          resp.ID,
		Interval:    runwayPollInterval,
		MaxAttempts: runwayMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			var out runwayStatusResponse
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, statusURL, headers, nil, &out); err != nil {
				return task.Update{}, err
			}
			update := task.Update{Status: runwayStatuses.Canonical(out.Status, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				if len(out.Output) > 0 {
					update.Result = task.Result{URL: out.Output[0], MIME: "video/mp4"}
				}
			case task.StatusFailed:
				update.Message = out.Failure
			}
			return update, nil
		},
	}, nil
}

var (
	_ Adapter        = (*Runway)(nil)
	_ VideoSubmitter = (*Runway)(nil)
)
