package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/task"
)

const (
	fluxDefaultBase  = "https://api.bfl.ai"
	fluxDefaultModel = "flux-pro-1.1"

	fluxPollInterval = 2 * time.Second
	fluxMaxAttempts  = 60
)

// fluxStatuses maps the backend's raw status vocabulary to canonical states.
var fluxStatuses = task.Vocabulary{
	"Pending":           task.StatusRunning,
	"Ready":             task.StatusSucceeded,
	"Error":             task.StatusFailed,
	"Request Moderated": task.StatusFailed,
	"Content Moderated": task.StatusFailed,
	"Task not found":    task.StatusFailed,
}

// Flux serves asynchronous image generation: submission returns a task id
// polled through get_result.
type Flux struct {
	base
}

// NewFlux creates the Flux adapter.
func NewFlux(opts ...Option) *Flux {
	return &Flux{base: newBase(provider.NameFlux, opts...)}
}

// Capabilities implements Adapter.
func (a *Flux) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityImage}
}

// RefForm implements Adapter.
func (a *Flux) RefForm() asset.Form { return asset.FormInline }

type fluxSubmitRequest struct {
	Prompt      string `json:"prompt"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImagePrompt string `json:"image_prompt,omitempty"` // base64 reference
}

type fluxSubmitResponse struct {
	ID string `json:"id"`
}

type fluxResultResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

// SubmitImage implements ImageSubmitter. The returned handle closes over the
// resolved credentials so polling is unaffected by later reconfiguration.
func (a *Flux) SubmitImage(ctx context.Context, req ImageRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityImage, fluxDefaultBase)
	model := cfg.Model
	if model == "" {
		model = fluxDefaultModel
	}

	width, height := parseSize(req.Size)
	payload := fluxSubmitRequest{Prompt: req.Prompt, Width: width, Height: height}
	if len(req.Refs) > 0 && req.Refs[0].Data != "" {
		payload.ImagePrompt = req.Refs[0].Data
	}

	headers := map[string]string{"x-key": cfg.APIKey}

	var resp fluxSubmitResponse
	err := a.doJSON(ctx, provider.CapabilityImage, http.MethodPost, cfg.BaseURL+"/v1/"+model, headers, payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.ID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityImage), "no task id returned")
	}

	pollURL := cfg.BaseURL + "/v1/get_result?id=" + url.QueryEscape(resp.ID)
	logger := a.logger

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityImage),
		ID:          resp.ID,
		Interval:    fluxPollInterval,
		MaxAttempts: fluxMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			var out fluxResultResponse
			if err := a.doJSON(ctx, provider.CapabilityImage, http.MethodGet, pollURL, headers, nil, &out); err != nil {
				return task.Update{}, err
			}
			update := task.Update{Status: fluxStatuses.Canonical(out.Status, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				update.Result = task.Result{URL: out.Result.Sample, MIME: "image/png"}
			case task.StatusFailed:
				update.Message = out.Status
			}
			return update, nil
		},
	}, nil
}

var (
	_ Adapter        = (*Flux)(nil)
	_ ImageSubmitter = (*Flux)(nil)
)
