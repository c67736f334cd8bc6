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
	miniMaxDefaultBase = "https://api.minimax.io"

	miniMaxPollInterval = 10 * time.Second
	miniMaxMaxAttempts  = 90
)

// miniMaxStatuses maps the backend's raw status vocabulary to canonical
// states.
var miniMaxStatuses = task.Vocabulary{
	"Queueing":   task.StatusRunning,
	"Preparing":  task.StatusRunning,
	"Processing": task.StatusRunning,
	"Success":    task.StatusSucceeded,
	"Fail":       task.StatusFailed,
}

// MiniMax serves asynchronous image-to-video generation. The backend
// separates "done" from "here is the payload": a succeeded task carries only
// a file id, resolved through a second files/retrieve call.
type MiniMax struct {
	base
}

// NewMiniMax creates the MiniMax adapter.
func NewMiniMax(opts ...Option) *MiniMax {
	return &MiniMax{base: newBase(provider.NameMiniMax, opts...)}
}

// Capabilities implements Adapter.
func (a *MiniMax) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityVideo}
}

// RefForm implements Adapter. first_frame_image accepts data URIs.
func (a *MiniMax) RefForm() asset.Form { return asset.FormInline }

type miniMaxBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type miniMaxSubmitRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt,omitempty"`
	FirstFrameImage string `json:"first_frame_image,omitempty"`
}

type miniMaxSubmitResponse struct {
	TaskID   string          `json:"task_id"`
	BaseResp miniMaxBaseResp `json:"base_resp"`
}

type miniMaxStatusResponse struct {
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	FileID   string          `json:"file_id"`
	BaseResp miniMaxBaseResp `json:"base_resp"`
}

type miniMaxFileResponse struct {
	File struct {
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp miniMaxBaseResp `json:"base_resp"`
}

// SubmitVideo implements VideoSubmitter.
func (a *MiniMax) SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityVideo, miniMaxDefaultBase)

	firstFrame := req.Start.URL
	if req.Start.Data != "" {
		firstFrame = req.Start.DataURI()
	}

	payload := miniMaxSubmitRequest{
		Model:           cfg.Model,
		Prompt:          req.Prompt,
		FirstFrameImage: firstFrame,
	}

	auth := bearer(cfg.APIKey)

	var resp miniMaxSubmitResponse
	err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodPost, cfg.BaseURL+"/v1/video_generation", auth, payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.BaseResp.StatusCode != 0 {
		return task.Handle{}, genfail.FromBackendMessage(string(a.name), string(provider.CapabilityVideo), resp.BaseResp.StatusMsg)
	}
	if resp.TaskID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no task id returned")
	}

	baseURL := cfg.BaseURL
	statusURL := baseURL + "/v1/query/video_generation?task_id=" + url.QueryEscape(resp.TaskID)
	logger := a.logger

	// The file id observed on success, consumed by the result fetch step.
	var fileID string

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityVideo),
		ID:          resp.TaskID,
		Interval:    miniMaxPollInterval,
		MaxAttempts: miniMaxMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			var out miniMaxStatusResponse
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, statusURL, auth, nil, &out); err != nil {
				return task.Update{}, err
			}
			update := task.Update{Status: miniMaxStatuses.Canonical(out.Status, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				fileID = out.FileID
			case task.StatusFailed:
				update.Message = out.BaseResp.StatusMsg
			}
			return update, nil
		},
		FetchResult: func(ctx context.Context) (task.Result, error) {
			fileURL := baseURL + "/v1/files/retrieve?file_id=" + url.QueryEscape(fileID)
			var out miniMaxFileResponse
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, fileURL, auth, nil, &out); err != nil {
				return task.Result{}, err
			}
			if out.File.DownloadURL == "" {
				return task.Result{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no download url for file")
			}
			return task.Result{URL: out.File.DownloadURL, MIME: "video/mp4"}, nil
		},
	}, nil
}

var (
	_ Adapter        = (*MiniMax)(nil)
	_ VideoSubmitter = (*MiniMax)(nil)
)
