package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"meltwatch/internal/config"
)

const userAgent = "meltwatch/0.1.0"

// Event names a monitor milestone.
type Event string

const (
	EventUnitCompleted    Event = "unit_completed"
	EventUnitFailed       Event = "unit_failed"
	EventRunCompleted     Event = "run_completed"
	EventRunAborted       Event = "run_aborted"
	EventTestNotification Event = "test"
)

// Payload carries event fields. Known keys: unitID, stage, outcome, exitCode,
// logPath, duration, processed, failed, reason, error.
type Payload map[string]any

// Service publishes monitor events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, and a no-op service otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventUnitCompleted:    cfg.Notifications.UnitCompleted,
			EventUnitFailed:       cfg.Notifications.UnitFailed,
			EventRunCompleted:     cfg.Notifications.RunCompleted,
			EventRunAborted:       cfg.Notifications.RunCompleted,
			EventTestNotification: true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventUnitCompleted:
		body := fmt.Sprintf("✅ Processed %s", payload.str("unitID"))
		if d := payload.duration("duration"); d > 0 {
			body += fmt.Sprintf(" in %s", d)
		}
		return message{
			title: "meltwatch - Unit Processed",
			body:  body,
			tags:  []string{"meltwatch", "unit", "completed"},
		}, true
	case EventUnitFailed:
		stage := payload.str("stage")
		outcome := payload.str("outcome")
		if code, ok := payload["exitCode"]; ok && outcome == "failed" {
			outcome = fmt.Sprintf("failed(%v)", code)
		}
		body := fmt.Sprintf("❌ %s %s for %s", stageLabel(stage), outcome, payload.str("unitID"))
		if logPath := payload.str("logPath"); logPath != "" {
			body += "\nLog: " + logPath
		}
		return message{
			title:    fmt.Sprintf("meltwatch - %s Failed", stageLabel(stage)),
			body:     body,
			tags:     []string{"meltwatch", strings.ToLower(stage), "failed"},
			priority: "high",
		}, true
	case EventRunCompleted:
		processed := payload.integer("processed")
		failed := payload.integer("failed")
		duration := payload.duration("duration").Round(time.Second)
		title := "meltwatch - Run Complete"
		body := fmt.Sprintf("Monitoring finished (%s): %d units processed in %s", payload.str("reason"), processed, duration)
		if failed > 0 {
			title = "meltwatch - Run Complete (with failures)"
			body = fmt.Sprintf("Monitoring finished (%s): %d processed, %d failed attempts in %s", payload.str("reason"), processed, failed, duration)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"meltwatch", "run", "completed"},
		}, true
	case EventRunAborted:
		return message{
			title:    "meltwatch - Run Aborted",
			body:     fmt.Sprintf("❌ Monitoring could not start: %s", payload.str("error")),
			tags:     []string{"meltwatch", "run", "error"},
			priority: "high",
		}, true
	case EventTestNotification:
		return message{
			title:    "meltwatch - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"meltwatch", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func stageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return "Stage"
	}
	return cases.Title(language.Und).String(stage)
}

func (p Payload) str(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (p Payload) integer(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok {
		return d
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
