package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Static errors for the form store.
var (
	// ErrEndpointRequired is returned when the upload endpoint is empty.
	ErrEndpointRequired = errors.New("artifact: storage endpoint is required")
	// ErrUploadRejected is returned when the endpoint reports a non-zero
	// status code in its response envelope.
	ErrUploadRejected = errors.New("artifact: upload rejected by storage endpoint")
	// ErrNoStoredURL is returned when the response envelope carries no URL.
	ErrNoStoredURL = errors.New("artifact: storage response has no url")
)

// FormStore uploads artifacts to an HTTP storage endpoint with one
// multipart form POST per artifact: a category field plus either a
// remote-fetch URL or an inline base64 payload with its filename.
type FormStore struct {
	endpoint   string
	httpClient *http.Client
}

// FormStoreOption configures a FormStore.
type FormStoreOption func(*FormStore)

// WithFormHTTPClient sets a custom HTTP client.
func WithFormHTTPClient(c *http.Client) FormStoreOption {
	return func(s *FormStore) {
		s.httpClient = c
	}
}

// NewFormStore creates a FormStore for the given endpoint.
func NewFormStore(endpoint string, opts ...FormStoreOption) (*FormStore, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	s := &FormStore{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// uploadEnvelope is the endpoint's JSON response: a status code field and a
// nested object carrying the stored file's URL.
type uploadEnvelope struct {
	Code int `json:"code"`
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
	Message string `json:"message"`
}

// Upload posts one artifact to the storage endpoint.
func (s *FormStore) Upload(ctx context.Context, up Upload) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("category", up.Category); err != nil {
		return "", fmt.Errorf("artifact: write form: %w", err)
	}
	if up.SourceURL != "" {
		if err := form.WriteField("url", up.SourceURL); err != nil {
			return "", fmt.Errorf("artifact: write form: %w", err)
		}
	} else {
		if err := form.WriteField("base64", up.Data); err != nil {
			return "", fmt.Errorf("artifact: write form: %w", err)
		}
		if err := form.WriteField("filename", up.Filename); err != nil {
			return "", fmt.Errorf("artifact: write form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("artifact: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("artifact: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("artifact: upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("artifact: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("artifact: upload returned http %d", resp.StatusCode)
	}

	var envelope uploadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("artifact: decode response: %w", err)
	}
	if envelope.Code != 0 {
		return "", fmt.Errorf("%w: code %d: %s", ErrUploadRejected, envelope.Code, envelope.Message)
	}
	if envelope.Data.URL == "" {
		return "", ErrNoStoredURL
	}
	return envelope.Data.URL, nil
}
