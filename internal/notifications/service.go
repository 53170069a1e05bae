package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"slipstream/internal/config"
)

const (
	userAgent      = "slipstream"
	defaultTimeout = 10 * time.Second
)

// Summary describes a finished backup.
type Summary struct {
	Title      string
	OutputPath string
	Bytes      int64
	Duration   time.Duration
	Scrambled  bool
}

// Service is the notification surface used by the backup commands.
type Service interface {
	NotifyBackupStarted(ctx context.Context, title, target string) error
	NotifyBackupCompleted(ctx context.Context, summary Summary) error
	NotifyBackupFailed(ctx context.Context, title, category string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed Service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	settings := cfg.Notifications
	topic := strings.TrimSpace(settings.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(settings.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: settings,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyBackupStarted(ctx context.Context, title, target string) error {
	if !n.settings.Started {
		return nil
	}
	return n.send(ctx, payload{
		title:   "slipstream - Backup Started",
		message: fmt.Sprintf("Backing up %s from %s", strings.TrimSpace(title), strings.TrimSpace(target)),
		tags:    []string{"slipstream", "backup", "started"},
	})
}

func (n *ntfyService) NotifyBackupCompleted(ctx context.Context, summary Summary) error {
	if !n.settings.Completed {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Backup complete: %s", strings.TrimSpace(summary.Title))
	if summary.Bytes > 0 {
		fmt.Fprintf(&b, " (%s", humanize.IBytes(uint64(summary.Bytes)))
		if d := summary.Duration.Round(time.Second); d > 0 {
			fmt.Fprintf(&b, " in %s", d)
		}
		b.WriteString(")")
	}
	if summary.OutputPath != "" {
		fmt.Fprintf(&b, "\nFile: %s", summary.OutputPath)
	}
	tags := []string{"slipstream", "backup", "completed"}
	if summary.Scrambled {
		tags = append(tags, "css")
	}
	return n.send(ctx, payload{
		title:   "slipstream - Backup Complete",
		message: b.String(),
		tags:    tags,
	})
}

func (n *ntfyService) NotifyBackupFailed(ctx context.Context, title, category string, err error) error {
	if !n.settings.Failures {
		return nil
	}
	var b strings.Builder
	b.WriteString("Backup failed")
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(": ")
		b.WriteString(title)
	}
	if category = strings.TrimSpace(category); category != "" {
		fmt.Fprintf(&b, " (%s)", category)
	}
	if err != nil {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(err.Error()))
	}
	return n.send(ctx, payload{
		title:    "slipstream - Backup Failed",
		message:  b.String(),
		tags:     []string{"slipstream", "backup", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "slipstream - Test",
		message:  "Notification system test",
		tags:     []string{"slipstream", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

type noopService struct{}

func (noopService) NotifyBackupStarted(context.Context, string, string) error       { return nil }
func (noopService) NotifyBackupCompleted(context.Context, Summary) error            { return nil }
func (noopService) NotifyBackupFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
