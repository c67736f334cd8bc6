package backend

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/task"
)

const (
	klingDefaultBase = "https://api.klingai.com"

	klingPollInterval = 5 * time.Second
	klingMaxAttempts  = 120
	klingTokenTTL     = 30 * time.Minute
)

// ErrKlingCredential is returned when the credential is not an
// "accessKey:secretKey" pair.
var ErrKlingCredential = errors.New("kling: credential must be accessKey:secretKey")

// klingStatuses maps the backend's raw status vocabulary to canonical states.
var klingStatuses = task.Vocabulary{
	"submitted":  task.StatusRunning,
	"processing": task.StatusRunning,
	"succeed":    task.StatusSucceeded,
	"failed":     task.StatusFailed,
}

// Kling serves asynchronous image-to-video generation. Authentication is a
// short-lived HS256 JWT minted per request from the access/secret key pair.
type Kling struct {
	base
	now func() time.Time
}

// NewKling creates the Kling adapter.
func NewKling(opts ...Option) *Kling {
	return &Kling{base: newBase(provider.NameKling, opts...), now: time.Now}
}

// Capabilities implements Adapter.
func (a *Kling) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityVideo}
}

// RefForm implements Adapter.
func (a *Kling) RefForm() asset.Form { return asset.FormURL }

// token mints the per-request bearer JWT.
func (a *Kling) token(credential string) (string, error) {
	accessKey, secretKey, found := strings.Cut(credential, ":")
	if !found || accessKey == "" || secretKey == "" {
		return "", ErrKlingCredential
	}
	now := a.now()
	claims := jwt.MapClaims{
		"iss": accessKey,
		"exp": now.Add(klingTokenTTL).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

type klingSubmitRequest struct {
	ModelName     string       `json:"model_name"`
	Image         string       `json:"image"`
	ImageTail     string       `json:"image_tail,omitempty"`
	Prompt        string       `json:"prompt,omitempty"`
	Duration      string       `json:"duration,omitempty"`
	Mode          string       `json:"mode,omitempty"`
	CameraControl *klingCamera `json:"camera_control,omitempty"`
}

type klingCamera struct {
	Type string `json:"type"`
}

type klingEnvelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type klingSubmitData struct {
	TaskID string `json:"task_id"`
}

type klingStatusData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			URL string `json:"url"`
		} `json:"videos"`
	} `json:"task_result"`
}

// SubmitVideo implements VideoSubmitter.
func (a *Kling) SubmitVideo(ctx context.Context, req VideoRequest) (task.Handle, error) {
	cfg := a.runtime(provider.CapabilityVideo, klingDefaultBase)

	token, err := a.token(cfg.APIKey)
	if err != nil {
		return task.Handle{}, err
	}

	payload := klingSubmitRequest{
		ModelName: cfg.Model,
		Image:     req.Start.URL,
		Prompt:    req.Prompt,
		Mode:      "std",
	}
	if req.End != nil {
		payload.ImageTail = req.End.URL
	}
	if req.Duration > 0 {
		payload.Duration = strconv.Itoa(req.Duration)
	}
	if req.CameraMove != "" {
		payload.CameraControl = &klingCamera{Type: req.CameraMove}
	}

	var resp klingEnvelope[klingSubmitData]
	err = a.doJSON(ctx, provider.CapabilityVideo, http.MethodPost, cfg.BaseURL+"/v1/videos/image2video", bearer(token), payload, &resp)
	if err != nil {
		return task.Handle{}, err
	}
	if resp.Code != 0 {
		return task.Handle{}, genfail.FromBackendMessage(string(a.name), string(provider.CapabilityVideo), resp.Message)
	}
	if resp.Data.TaskID == "" {
		return task.Handle{}, genfail.New(genfail.KindBackendRejected, string(a.name), string(provider.CapabilityVideo), "no task id returned")
	}

	statusURL := cfg.BaseURL + "/v1/videos/image2video/" + resp.Data.TaskID
	credential := cfg.APIKey
	logger := a.logger

	return task.Handle{
		Provider:    string(a.name),
		Capability:  string(provider.CapabilityVideo),
		ID:          resp.Data.TaskID,
		Interval:    klingPollInterval,
		MaxAttempts: klingMaxAttempts,
		Fetch: func(ctx context.Context) (task.Update, error) {
			// Tokens are short-lived; mint a fresh one per status query
			// from the credential captured at submit time.
			pollToken, err := a.token(credential)
			if err != nil {
				return task.Update{}, err
			}
			var out klingEnvelope[klingStatusData]
			if err := a.doJSON(ctx, provider.CapabilityVideo, http.MethodGet, statusURL, bearer(pollToken), nil, &out); err != nil {
				return task.Update{}, err
			}
			if out.Code != 0 {
				return task.Update{}, genfail.FromBackendMessage(string(a.name), string(provider.CapabilityVideo), out.Message)
			}
			update := task.Update{Status: klingStatuses.Canonical(out.Data.TaskStatus, logger)}
			switch update.Status {
			case task.StatusSucceeded:
				if len(out.Data.TaskResult.Videos) > 0 {
					update.Result = task.Result{URL: out.Data.TaskResult.Videos[0].URL, MIME: "video/mp4"}
				}
			case task.StatusFailed:
				update.Message = out.Data.TaskStatusMsg
			}
			return update, nil
		},
	}, nil
}

var (
	_ Adapter        = (*Kling)(nil)
	_ VideoSubmitter = (*Kling)(nil)
)
