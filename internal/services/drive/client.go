package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"capnote/internal/config"
	"capnote/internal/services"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"
	defaultHTTPTimeout   = 120 * time.Second
	folderMimeType       = "application/vnd.google-apps.folder"
	logMimeType          = "text/plain"
)

// FileInfo identifies an uploaded file in cloud storage.
type FileInfo struct {
	ID  string
	URL string
}

// Client talks to a Google Drive compatible storage API. Uploads land in a
// named folder which is created on first use.
type Client struct {
	tokenPath     string
	folder        string
	baseURL       string
	uploadBaseURL string
	httpClient    *http.Client

	mu       sync.Mutex
	folderID string
}

// Option customizes the storage client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides both API bases (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
			c.uploadBaseURL = c.baseURL
		}
	}
}

// WithUploadBaseURL overrides only the media upload base.
func WithUploadBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.uploadBaseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs a storage client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := time.Duration(cfg.Storage.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		tokenPath:     cfg.Storage.TokenPath,
		folder:        strings.TrimSpace(cfg.Storage.Folder),
		baseURL:       defaultBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
		httpClient:    &http.Client{Timeout: timeout},
	}
	if base := strings.TrimSpace(cfg.Storage.BaseURL); base != "" && base != defaultBaseURL {
		client.baseURL = strings.TrimRight(base, "/")
		client.uploadBaseURL = client.baseURL
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Ready reports whether a usable credential is present. It does not validate
// the token against the API; an expired token surfaces as an auth error at
// upload time and the task retries.
func (c *Client) Ready(context.Context) bool {
	token, err := c.token()
	return err == nil && token != ""
}

func (c *Client) token() (string, error) {
	if strings.TrimSpace(c.tokenPath) == "" {
		return "", services.Wrap(services.ErrConfiguration, "drive", "token", "token path not configured", nil)
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrAuth, "drive", "token", "token file missing, sign in first", nil)
		}
		return "", services.Wrap(services.ErrAuth, "drive", "token", "read token file", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", services.Wrap(services.ErrAuth, "drive", "token", "token file empty, sign in first", nil)
	}
	return token, nil
}

// Upload sends a local audio file to the configured folder and returns its
// remote identifiers.
func (c *Client) Upload(ctx context.Context, localPath string) (FileInfo, error) {
	var empty FileInfo
	token, err := c.token()
	if err != nil {
		return empty, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, services.Wrap(services.ErrNotFound, "drive", "upload", "local file missing", err)
		}
		return empty, services.Wrap(services.ErrTransient, "drive", "upload", "open local file", err)
	}
	defer file.Close()

	folderID, err := c.ensureFolder(ctx, token)
	if err != nil {
		return empty, err
	}

	metadata := map[string]any{
		"name": filepath.Base(localPath),
	}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}

	body, contentType, err := buildMultipartBody(metadata, file)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "drive", "upload", "build request body", err)
	}

	endpoint, err := url.JoinPath(c.uploadBaseURL, "files")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "drive", "upload", "build url", err)
	}
	endpoint += "?uploadType=multipart&fields=id,webViewLink"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "drive", "upload", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "drive", "upload", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "drive", "upload", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, statusError("upload", resp.StatusCode, payload)
	}

	var result struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return empty, services.Wrap(services.ErrExternal, "drive", "upload", "decode response", err)
	}
	if result.ID == "" {
		return empty, services.Wrap(services.ErrExternal, "drive", "upload", "response missing file id", nil)
	}
	info := FileInfo{ID: result.ID, URL: result.WebViewLink}
	if info.URL == "" {
		info.URL = fmt.Sprintf("https://drive.google.com/file/d/%s/view", result.ID)
	}
	return info, nil
}

// AppendDailyLog appends an entry to the transcript log for dateKey, creating
// the log file on first append. The read-modify-write has no concurrency
// guard; a single daemon is the only writer.
func (c *Client) AppendDailyLog(ctx context.Context, dateKey, entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}
	token, err := c.token()
	if err != nil {
		return err
	}
	folderID, err := c.ensureFolder(ctx, token)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("transcripts-%s.txt", dateKey)
	fileID, err := c.findFile(ctx, token, name, folderID, logMimeType)
	if err != nil {
		return err
	}

	if fileID == "" {
		metadata := map[string]any{
			"name":     name,
			"mimeType": logMimeType,
		}
		if folderID != "" {
			metadata["parents"] = []string{folderID}
		}
		body, contentType, err := buildMultipartBody(metadata, strings.NewReader(entry+"\n"))
		if err != nil {
			return services.Wrap(services.ErrTransient, "drive", "daily log", "build request body", err)
		}
		endpoint, err := url.JoinPath(c.uploadBaseURL, "files")
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "drive", "daily log", "build url", err)
		}
		endpoint += "?uploadType=multipart"
		return c.sendUpload(ctx, http.MethodPost, endpoint, token, contentType, body, "daily log")
	}

	existing, err := c.downloadFile(ctx, token, fileID)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		existing = append(existing, '\n')
	}
	updated := append(existing, []byte(entry+"\n")...)

	endpoint, err := url.JoinPath(c.uploadBaseURL, "files", fileID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "drive", "daily log", "build url", err)
	}
	endpoint += "?uploadType=media"
	return c.sendUpload(ctx, http.MethodPatch, endpoint, token, logMimeType, bytes.NewReader(updated), "daily log")
}

func (c *Client) ensureFolder(ctx context.Context, token string) (string, error) {
	if c.folder == "" {
		return "", nil
	}

	c.mu.Lock()
	cached := c.folderID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	id, err := c.findFile(ctx, token, c.folder, "", folderMimeType)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = c.createFolder(ctx, token)
		if err != nil {
			return "", err
		}
	}

	c.mu.Lock()
	c.folderID = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) createFolder(ctx context.Context, token string) (string, error) {
	metadata := map[string]any{
		"name":     c.folder,
		"mimeType": folderMimeType,
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "create folder", "encode request", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "files")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "drive", "create folder", "build url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "create folder", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "create folder", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "create folder", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("create folder", resp.StatusCode, payload)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", services.Wrap(services.ErrExternal, "drive", "create folder", "decode response", err)
	}
	if result.ID == "" {
		return "", services.Wrap(services.ErrExternal, "drive", "create folder", "response missing folder id", nil)
	}
	return result.ID, nil
}

func (c *Client) findFile(ctx context.Context, token, name, parentID, mimeType string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "files")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "drive", "find file", "build url", err)
	}

	terms := []string{
		fmt.Sprintf("name = '%s'", strings.ReplaceAll(name, "'", "\\'")),
		"trashed = false",
	}
	if mimeType != "" {
		terms = append(terms, fmt.Sprintf("mimeType = '%s'", mimeType))
	}
	if parentID != "" {
		terms = append(terms, fmt.Sprintf("'%s' in parents", parentID))
	}
	query := url.Values{}
	query.Set("q", strings.Join(terms, " and "))
	query.Set("fields", "files(id,name)")
	query.Set("pageSize", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "find file", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "find file", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "drive", "find file", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("find file", resp.StatusCode, payload)
	}

	var result struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", services.Wrap(services.ErrExternal, "drive", "find file", "decode response", err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].ID, nil
}

func (c *Client) downloadFile(ctx context.Context, token, fileID string) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, "files", fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "drive", "download", "build url", err)
	}
	endpoint += "?alt=media"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "drive", "download", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "drive", "download", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "drive", "download", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError("download", resp.StatusCode, payload)
	}
	return payload, nil
}

func (c *Client) sendUpload(ctx context.Context, method, endpoint, token, contentType string, body io.Reader, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "drive", operation, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "drive", operation, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "drive", operation, "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(operation, resp.StatusCode, payload)
	}
	return nil
}

func statusError(operation string, status int, body []byte) error {
	message := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "drive", operation, message, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "drive", operation, message, nil)
	default:
		return services.Wrap(services.ErrExternal, "drive", operation, message, nil)
	}
}

func buildMultipartBody(metadata map[string]any, media io.Reader) (io.Reader, string, error) {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(encoded); err != nil {
		return nil, "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/octet-stream")
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(mediaPart, media); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	contentType := fmt.Sprintf("multipart/related; boundary=%s", writer.Boundary())
	return &buf, contentType, nil
}
