package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"capnote/internal/config"
	"capnote/internal/services"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "whisper-1"
	defaultHTTPTimeout = 180 * time.Second
)

// Client posts audio to an OpenAI-compatible speech-to-text endpoint and
// returns the recognized text.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the transcription client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs a transcription client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := time.Duration(cfg.Transcription.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		apiKey:     strings.TrimSpace(cfg.Transcription.APIKey),
		model:      strings.TrimSpace(cfg.Transcription.Model),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if base := strings.TrimSpace(cfg.Transcription.BaseURL); base != "" {
		client.baseURL = strings.TrimRight(base, "/")
	}
	if client.model == "" {
		client.model = defaultModel
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether the client has an API key. Transcription is
// optional; unconfigured clients make the pipeline skip the enrichment step.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Transcribe uploads the audio file and returns its transcript text. Blank
// output means the service heard no speech; callers decide how to present
// that.
func (c *Client) Transcribe(ctx context.Context, localPath string) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "transcribe", "api key not configured", nil)
	}

	file, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "transcribe", "transcribe", "local file missing", err)
		}
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "open local file", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	filePart, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "build request body", err)
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "read local file", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "build request body", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "build request body", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "build request body", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "audio", "transcriptions")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "transcribe", "build url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "transcribe", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError(resp.StatusCode, payload)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", services.Wrap(services.ErrExternal, "transcribe", "transcribe", "decode response", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func statusError(status int, body []byte) error {
	message := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "transcribe", "transcribe", message, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transcribe", "transcribe", message, nil)
	default:
		return services.Wrap(services.ErrExternal, "transcribe", "transcribe", message, nil)
	}
}
