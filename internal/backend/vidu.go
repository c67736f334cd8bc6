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
	viduDefaultBase = "https://api.vidu.com"

	viduPollInterval = 5 * time.Second
	viduMaxAttempts  = 120
)

// viduStatuses maps the backend's raw status vocabulary to canonical states.
var viduStatuses = task.Vocabulary{
	"created":    task.StatusRunning,
	"queueing":   task.StatusRunning,
	"processing": task.StatusRunning,
	"success":    task.StatusSucceeded,
	"failed":     task.StatusFailed,
}

// Vidu serves asynchronous image-to-video generation.
type Vidu struct {
	base
}

// NewVidu creates the Vidu adapter.
func NewVidu(opts ...Option) *Vidu {
	return &Vidu{base: newBase(provider.NameVidu, opts...)}
}

// Capabilities implements Adapter.
func (a *Vidu) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityVideo}
}

// RefForm implements Adapter.
func (a *Vidu) RefForm() asset.Form { return asset.FormURL }

func viduHeaders(key string) map[string]string {
	return map[string]string{"Authorization": "Token " + key}
}

type viduSubmitRequest struct {
	Model    string   `json:"model"`
	Images   []string `json:"images"`
	Prompt   string   `json:"prompt,omitempty"`
	Duration int      `json:"duration,omitempty"`
}

type viduSubmitResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

type viduStatusResponse struct {
	State     string `json:"state"`
	ErrCode   string `json:"err_code"`
	Creations []struct {
		URL string `json:"url"`
	} `json:"creations"`
}

// SubmitVideo implements VideoSubmitter. The start frame is required; an
// end frame, when present, rides along as the second image.
func (a *Vidu) SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityVideo, viduDefaultBase)

	images := []string{req.Start.URL}
	if req.End != nil && req.End.URL != "" {
		images = append(images, req.End.URL)
	}

	payload := viduSubmitRequest{
		Model:    cfg.Model,
		Images:   images,
		Prompt:   req.Prompt,
		Duration: req.Duration,
	}

	headers := viduHeaders(cfg.APIKey)

	var resp viduSubmitResponse
	err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodPost, cfg.BaseURL+"/ent/v2/img2video", headers, payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.TaskID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no task id returned")
	}

	statusURL := cfg.BaseURL + "/ent/v2/tasks/" + resp.TaskID + "/creations"
	logger := a.logger

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityVideo),
		ID:          resp.TaskID,
		Interval:    viduPollInterval,
		MaxAttempts: viduMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			var out viduStatusResponse
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, statusURL, headers, nil, &out); err != nil {
				return task.Update{}, err
			}
			update := task.Update{Status: viduStatuses.Canonical(out.State, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				if len(out.Creations) > 0 {
					update.Result = task.Result{URL: out.Creations[0].URL, MIME: "video/mp4"}
				}
			case task.StatusFailed:
				update.Message = out.ErrCode
			}
			return update, nil
		},
	}, nil
}

var (
	_ Adapter        = (*Vidu)(nil)
	_ VideoSubmitter = (*Vidu)(nil)
)
