package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"capnote/internal/config"
)

const userAgent = "Capnote-Go/0.1.0"

// Service defines the notification surface exposed to sync components.
type Service interface {
	NotifyCaptureQueued(ctx context.Context, title string, durationSeconds float64) error
	NotifyUploadCompleted(ctx context.Context, title string) error
	NotifyTranscriptReady(ctx context.Context, title, excerpt string) error
	NotifySweepCompleted(ctx context.Context, enqueued int) error
	NotifySyncError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		captures:    cfg.Notifications.Captures,
		uploads:     cfg.Notifications.Uploads,
		transcripts: cfg.Notifications.Transcripts,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	captures    bool
	uploads     bool
	transcripts bool
	errors      bool
}

func (n *ntfyService) NotifyCaptureQueued(ctx context.Context, title string, durationSeconds float64) error {
	if !n.captures {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Queued for sync: %s", title)
	if durationSeconds > 0 {
		message = fmt.Sprintf("%s (%s)", message, formatDuration(durationSeconds))
	}
	data := payload{
		title:   "Capnote - Capture Queued",
		message: message,
		tags:    []string{"capnote", "capture", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, title string) error {
	if !n.uploads {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Capnote - Uploaded",
		message: fmt.Sprintf("Upload complete: %s", title),
		tags:    []string{"capnote", "upload", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptReady(ctx context.Context, title, excerpt string) error {
	if !n.transcripts {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Transcript ready: %s", title)
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		message = fmt.Sprintf("%s\n%s", message, truncate(excerpt, 160))
	}
	data := payload{
		title:   "Capnote - Transcript Ready",
		message: message,
		tags:    []string{"capnote", "transcript", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySweepCompleted(ctx context.Context, enqueued int) error {
	if !n.uploads || enqueued == 0 {
		return nil
	}
	data := payload{
		title:   "Capnote - Sync Sweep",
		message: fmt.Sprintf("Sweep queued %d pending recording(s)", enqueued),
		tags:    []string{"capnote", "sweep", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Capnote - Sync Error",
		message:  builder.String(),
		tags:     []string{"capnote", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Capnote - Test",
		message:  "Notification system test",
		tags:     []string{"capnote", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return d.String()
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return strings.TrimSpace(text[:limit]) + "..."
}

type noopService struct{}

func (noopService) NotifyCaptureQueued(context.Context, string, float64) error  { return nil }
func (noopService) NotifyUploadCompleted(context.Context, string) error         { return nil }
func (noopService) NotifyTranscriptReady(context.Context, string, string) error { return nil }
func (noopService) NotifySweepCompleted(context.Context, int) error             { return nil }
func (noopService) NotifySyncError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
