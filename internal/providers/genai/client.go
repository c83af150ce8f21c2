package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the cadence for checking a long-running video
// operation, matching the documented recommendation for Veo.
const DefaultPollInterval = 5 * time.Second

// Options controls how the client is configured.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

// Client is a lightweight facade over the Gemini video generation API. Veo
// requests are long-running: a predictLongRunning call returns an operation
// name which is polled until it reports done, and the resulting video URI is
// downloaded with the API key attached.
type Client struct {
	mu           sync.RWMutex
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zerolog.Logger
}

// VideoRequest represents the information required to generate one video.
type VideoRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	Resolution  string
	ImageData   string // base64 payload, empty for prompt-only requests
	ImageMIME   string
	RequestID   string
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	SampleCount int    `json:"sampleCount,omitempty"`
}

type predictLongRunningRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type operationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type generatedVideo struct {
	URI string `json:"uri,omitempty"`
}

type generatedSample struct {
	Video generatedVideo `json:"video"`
}

type generateVideoResponse struct {
	GeneratedSamples []generatedSample `json:"generatedSamples,omitempty"`
}

type operationResponse struct {
	GenerateVideoResponse generateVideoResponse `json:"generateVideoResponse"`
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *operationError    `json:"error,omitempty"`
	Response *operationResponse `json:"response,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Veo client with sane defaults. Callers may provide a
// nil HTTP client; a reusable one without an overall timeout is created so
// multi-minute downloads are not cut short (per-call deadlines come from the
// caller's context).
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "veo-3.0-generate-001"
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var logger *zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		pollInterval: pollInterval,
		httpClient:   client,
		logger:       logger,
	}
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// SetAPIKey replaces the credential at runtime. Polling loops already in
// flight pick up the new key on their next request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// GenerateVideo starts a long-running generation operation and polls it to a
// terminal state, returning the remote video URI. There is no overall
// deadline beyond the caller's context; a remote operation that never
// terminates keeps this call waiting.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	if c.key() == "" {
		return "", fmt.Errorf("genai: api key not configured")
	}

	name, err := c.startOperation(ctx, req)
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("operation", name).
		Msg("genai: video operation started")

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		op, err := c.pollOperation(ctx, name)
		if err != nil {
			return "", err
		}
		if !op.Done {
			continue
		}
		if op.Error != nil {
			if op.Error.Message != "" {
				return "", fmt.Errorf("%s", op.Error.Message)
			}
			return "", fmt.Errorf("generation operation failed with code %d", op.Error.Code)
		}
		uri := extractVideoURI(op)
		if uri == "" {
			return "", fmt.Errorf("generation operation returned no video")
		}
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("operation", name).
			Msg("genai: video operation finished")
		return uri, nil
	}
}

func (c *Client) startOperation(ctx context.Context, req VideoRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	instance := veoInstance{Prompt: req.Prompt}
	if req.ImageData != "" {
		instance.Image = &veoImage{
			BytesBase64Encoded: req.ImageData,
			MimeType:           req.ImageMIME,
		}
	}
	payload := predictLongRunningRequest{
		Instances: []veoInstance{instance},
		Parameters: veoParameters{
			AspectRatio: req.AspectRatio,
			Resolution:  req.Resolution,
			SampleCount: 1,
		},
	}

	var op operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(model))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("no operation name returned")
	}
	return op.Name, nil
}

func (c *Client) pollOperation(ctx context.Context, name string) (*operation, error) {
	var op operation
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func extractVideoURI(op *operation) string {
	if op == nil || op.Response == nil {
		return ""
	}
	for _, sample := range op.Response.GenerateVideoResponse.GeneratedSamples {
		if sample.Video.URI != "" {
			return sample.Video.URI
		}
	}
	return ""
}

func (c *Client) invoke(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if key := c.key(); key != "" {
		q.Set("key", key)
	}
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Download fetches the generated video bytes. The API key is appended as a
// query parameter, which is how the file endpoint authenticates downloads.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if key := c.key(); key != "" {
		q := req.URL.Query()
		q.Set("key", key)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read video: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("api status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("api status %d", resp.StatusCode)
}
