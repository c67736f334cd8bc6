package backend

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/task"
)

const (
	doubaoDefaultBase = "https://ark.cn-beijing.volces.com/api/v3"

	doubaoPollInterval = 5 * time.Second
	doubaoMaxAttempts  = 120
)

// doubaoStatuses maps the video task vocabulary to canonical states.
var doubaoStatuses = task.Vocabulary{
	"queued":    task.StatusRunning,
	"running":   task.StatusRunning,
	"succeeded": task.StatusSucceeded,
	"failed":    task.StatusFailed,
	"cancelled": task.StatusFailed,
}

// Doubao serves synchronous image generation (seedream) and asynchronous
// video generation (seedance) on the Ark platform.
type Doubao struct {
	base
}

// NewDoubao creates the Doubao adapter.
func NewDoubao(opts ...Option) *Doubao {
	return &Doubao{base: newBase(provider.NameDoubao, opts...)}
}

// Capabilities implements Adapter.
func (a *Doubao) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityImage, provider.CapabilityVideo}
}

// RefForm implements Adapter. Ark takes reference images by URL.
func (a *Doubao) RefForm() asset.Form { return asset.FormURL }

// SupportsNup implements ImageGenerator.
func (a *Doubao) SupportsNup() bool { return false }

type doubaoImageRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	Image          []string `json:"image,omitempty"`
	Size           string   `json:"size,omitempty"`
	ResponseFormat string   `json:"response_format"`
}

type doubaoImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *doubaoError `json:"error"`
}

type doubaoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GenerateImage implements ImageGenerator. Reference images are passed by
// URL in positional order; multiple references add the index legend so the
// model knows which slot is the scene and which are cast members.
func (a *Doubao) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	cfg := a.runtime(provider.CapabilityImage, doubaoDefaultBase)

	prompt := req.Prompt
	if len(req.Refs) > 1 {
		prompt += ReferenceLegend(len(req.Refs))
	}

	var refs []string
	for _, ref := range req.Refs {
		if ref.URL != "" {
			refs = append(refs, ref.URL)
		}
	}

	payload := doubaoImageRequest{
		Model:          cfg.Model,
		Prompt:         prompt,
		Image:          refs,
		Size:           req.Size,
		ResponseFormat: "url",
	}

	var resp doubaoImageResponse
	err := a.doJSON(ctx, provider.CapabilityImage, http.MethodPost, cfg.BaseURL+"/images/generations", bearer(cfg.APIKey), payload, &resp)
	if err != nil {
		return ImageResult{}, err
	}
	if resp.Error != nil {
		return ImageResult{}, genfail.FromBackendMessage(string(a.name), string(provider.CapabilityImage), resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return ImageResult{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityImage), "empty data in response")
	}
	return ImageResult{URL: resp.Data[0].URL, MIME: "image/png"}, nil
}

type doubaoVideoContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Role     string          `json:"role,omitempty"`
	ImageURL *doubaoImageURL `json:"image_url,omitempty"`
}

type doubaoImageURL struct {
	URL string `json:"url"`
}

type doubaoVideoRequest struct {
	Model   string               `json:"model"`
	Content []doubaoVideoContent `json:"content"`
}

type doubaoVideoSubmitResponse struct {
	ID    string       `json:"id"`
	Error *doubaoError `json:"error"`
}

type doubaoVideoStatusResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error *doubaoError `json:"error"`
}

// SubmitVideo implements VideoSubmitter.
func (a *Doubao) SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityVideo, doubaoDefaultBase)

	text := req.Prompt
	if req.Duration > 0 {
		text += " --duration " + strconv.Itoa(req.Duration)
	}
	if req.AspectRatio != "" {
		text += " --ratio " + req.AspectRatio
	}

	content := []doubaoVideoContent{{Type: "text", Text: text}}
	if req.Start.URL != "" {
		content = append(content, doubaoVideoContent{
			Type: "image_url", Role: "first_frame", ImageURL: &doubaoImageURL{URL: req.Start.URL},
		})
	}
	if req.End != nil && req.End.URL != "" {
		content = append(content, doubaoVideoContent{
			Type: "image_url", Role: "last_frame", ImageURL: &doubaoImageURL{URL: req.End.URL},
		})
	}

	payload := doubaoVideoRequest{Model: cfg.Model, Content: content}

	var resp doubaoVideoSubmitResponse
	err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodPost, cfg.BaseURL+"/contents/generations/tasks", bearer(cfg.APIKey), payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.Error != nil {
		return task.Handle{}, genfail.FromBackendMessage(string(a.name), string(provider.CapabilityVideo), resp.Error.Message)
	}
	if resp.ID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no task id returned")
	}

	statusURL := cfg.BaseURL + "/contents/generations/tasks/" + resp.ID
	auth := bearer(cfg.APIKey)
	logger := a.logger

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityVideo),
		ID:          resp.ID,
		Interval:    doubaoPollInterval,
		MaxAttempts: doubaoMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			var out doubaoVideoStatusResponse
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, statusURL, auth, nil, &out); err != nil {
				return task.Update{}, err
			}
			update := task.Update{Status: doubaoStatuses.Canonical(out.Status, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				update.Result = task.Result{URL: out.Content.VideoURL, MIME: "video/mp4"}
			case task.StatusFailed:
				if out.Error != nil {
					update.Message = out.Error.Message
				} else {
					update.Message = out.Status
				}
			}
			return update, nil
		},
	}, nil
}

var (
	_ Adapter        = (*Doubao)(nil)
	_ ImageGenerator = (*Doubao)(nil)
	_ VideoSubmitter = (*Doubao)(nil)
)
