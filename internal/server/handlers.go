package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/storyforge/mediagen/internal/artifact"
	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/generate"
	"github.com/storyforge/mediagen/internal/genfail"
	"github.com/storyforge/mediagen/internal/provider"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *generate.Service
	store     provider.Store
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *generate.Service, store provider.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		store:     store,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /healthz requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GenerateText handles POST /v1/generations/text requests.
func (h *Handlers) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req TextGenerationRequest
	if !h.decode(w, r, &req) {
		return
	}

	text, err := h.service.GenerateText(r.Context(), generate.TextInput{
		Prompt:      req.Prompt,
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Scope:       scopeOf(req.ConfigID, req.ProjectConfigID),
	})
	if err != nil {
		h.writeGenerationError(w, "text generation", err)
		return
	}

	writeJSON(w, http.StatusOK, TextGenerationResponse{Text: text})
}

// GenerateImage handles POST /v1/generations/image requests.
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req ImageGenerationRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.service.GenerateImage(r.Context(), imageInput(req))
	if err != nil {
		h.writeGenerationError(w, "image generation", err)
		return
	}

	writeJSON(w, http.StatusOK, artifactResponse(a))
}

// GenerateImageBatch handles POST /v1/generations/image/batch requests.
func (h *Handlers) GenerateImageBatch(w http.ResponseWriter, r *http.Request) {
	var req ImageBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	inputs := make([]generate.ImageInput, len(req.Items))
	for i, item := range req.Items {
		inputs[i] = imageInput(item)
	}

	items := h.service.GenerateImageBatch(r.Context(), inputs)
	resp := ImageBatchResponse{Items: make([]BatchItemResponse, len(items))}
	for i, item := range items {
		if item.Err != nil {
			resp.Items[i].Error = item.Err.Error()
			continue
		}
		out := artifactResponse(item.Artifact)
		resp.Items[i].Artifact = &out
	}

	writeJSON(w, http.StatusOK, resp)
}

// GenerateVideo handles POST /v1/generations/video requests.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req VideoGenerationRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := generate.VideoInput{
		Prompt:      req.Prompt,
		Start:       referenceAsset(req.StartImage),
		Duration:    req.Duration,
		AspectRatio: req.AspectRatio,
		CameraMove:  req.CameraMove,
		Scope:       scopeOf(req.ConfigID, req.ProjectConfigID),
	}
	if req.EndImage != nil {
		end := referenceAsset(*req.EndImage)
		in.End = &end
	}

	a, err := h.service.GenerateVideo(r.Context(), in)
	if err != nil {
		h.writeGenerationError(w, "video generation", err)
		return
	}

	writeJSON(w, http.StatusOK, artifactResponse(a))
}

// ListProviders handles GET /v1/providers requests. Credentials are reported
// only as present or absent.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	configs := h.store.List()
	resp := ProvidersResponse{Providers: make([]ProviderConfigResponse, len(configs))}
	for i, cfg := range configs {
		resp.Providers[i] = ProviderConfigResponse{
			ID:            cfg.ID,
			Name:          string(cfg.Name),
			Capability:    string(cfg.Capability),
			Model:         cfg.Model,
			BaseURL:       cfg.BaseURL,
			Enabled:       cfg.Enabled,
			HasCredential: cfg.HasCredential(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PutProvider handles POST /v1/providers requests.
func (h *Handlers) PutProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderConfigRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg := provider.Config{
		ID:         req.ID,
		Name:       provider.Name(req.Name),
		Capability: provider.Capability(req.Capability),
		Model:      req.Model,
		APIKey:     req.APIKey,
		BaseURL:    req.BaseURL,
		Enabled:    req.Enabled,
	}
	if err := h.store.Put(cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider configuration", "PROVIDER_INVALID")
		return
	}

	h.logger.Info("provider configuration stored",
		slog.String("config_id", cfg.ID),
		slog.String("provider", string(cfg.Name)),
		slog.String("capability", string(cfg.Capability)),
		slog.Bool("enabled", cfg.Enabled),
	)
	w.WriteHeader(http.StatusNoContent)
}

// EnableProvider handles POST /v1/providers/{id}/enable requests.
func (h *Handlers) EnableProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "provider configuration id is required", "MISSING_CONFIG_ID")
		return
	}

	if err := h.store.SetEnabled(id); err != nil {
		writeError(w, http.StatusNotFound, "provider configuration not found", "PROVIDER_NOT_FOUND")
		return
	}

	h.logger.Info("provider configuration enabled", slog.String("config_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON request body, writing the error response
// itself when the body is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeGenerationError maps a generation failure kind to an HTTP status.
func (h *Handlers) writeGenerationError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed",
		slog.String("error", err.Error()),
		slog.String("kind", string(genfail.KindOf(err))),
	)

	switch genfail.KindOf(err) {
	case genfail.KindNoProviderConfigured:
		writeError(w, http.StatusConflict, err.Error(), "NO_PROVIDER_CONFIGURED")
	case genfail.KindRateLimited:
		writeError(w, http.StatusTooManyRequests, err.Error(), "RATE_LIMITED")
	case genfail.KindBackendRejected:
		writeError(w, http.StatusBadGateway, err.Error(), "BACKEND_REJECTED")
	case genfail.KindTaskFailed:
		writeError(w, http.StatusBadGateway, err.Error(), "TASK_FAILED")
	case genfail.KindTaskTimedOut:
		writeError(w, http.StatusGatewayTimeout, err.Error(), "TASK_TIMED_OUT")
	case genfail.KindPersistenceUnavailable:
		writeError(w, http.StatusBadGateway, err.Error(), "PERSISTENCE_UNAVAILABLE")
	default:
		writeError(w, http.StatusInternalServerError, op+" failed", "INTERNAL_ERROR")
	}
}

func scopeOf(configID, projectConfigID string) provider.Scope {
	return provider.Scope{RequestConfigID: configID, ProjectConfigID: projectConfigID}
}

func referenceAsset(ref ReferenceImage) asset.Asset {
	return asset.Asset{URL: ref.URL, Data: ref.Base64, MIME: ref.MIME}
}

func imageInput(req ImageGenerationRequest) generate.ImageInput {
	refs := make([]asset.Asset, 0, len(req.Refs))
	for _, ref := range req.Refs {
		refs = append(refs, referenceAsset(ref))
	}
	return generate.ImageInput{
		Prompt:      req.Prompt,
		Refs:        refs,
		Count:       req.Count,
		Size:        req.Size,
		AspectRatio: req.AspectRatio,
		Style:       req.Style,
		Scope:       scopeOf(req.ConfigID, req.ProjectConfigID),
	}
}

func artifactResponse(a *artifact.Artifact) ArtifactResponse {
	resp := ArtifactResponse{
		ID:       a.ID,
		Provider: string(a.Provider),
		URL:      a.Location(),
		MIME:     a.MIME,
	}
	if resp.URL == "" {
		resp.Base64 = a.Base64
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
