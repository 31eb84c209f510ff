package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/carverauto/clusterwatch/pkg/config"
	"go.uber.org/zap"
)

var (
	ErrWebhookDisabled   = errors.New("webhook alerter is disabled")
	ErrWebhookCooldown   = errors.New("alert is within cooldown period")
	ErrInvalidJSON       = errors.New("invalid JSON generated")
	ErrWebhookStatus     = errors.New("webhook returned non-2xx status")
	ErrTemplateParse     = errors.New("template parsing failed")
	ErrTemplateExecution = errors.New("template execution failed")
)

const defaultWebhookTimeout = 10 * time.Second

type AlertLevel string

const (
	Info    AlertLevel = "info"
	Warning AlertLevel = "warning"
	Error   AlertLevel = "error"
)

type WebhookAlert struct {
	Level     AlertLevel     `json:"level"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	EntityID  string         `json:"entity_id"`
	Details   map[string]any `json:"details,omitempty"`
}

type WebhookAlerter struct {
	config         config.WebhookConfig
	client         *http.Client
	tmpl           *template.Template
	logger         *zap.Logger
	now            func() time.Time
	lastAlertTimes map[string]time.Time
	mu             sync.Mutex
	bufferPool     *sync.Pool
}

// NewWebhookAlerter builds an alerter. A configured template is parsed up
// front so a bad template fails at startup rather than on the first alarm.
func NewWebhookAlerter(cfg config.WebhookConfig, logger *zap.Logger) (*WebhookAlerter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &WebhookAlerter{
		config: cfg,
		client: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
		logger:         logger.With(zap.String("webhook", redactURL(cfg.URL))),
		now:            time.Now,
		lastAlertTimes: make(map[string]time.Time),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}

	if cfg.Template == "" && strings.EqualFold(cfg.Preset, PresetDiscord) {
		cfg.Template = DiscordTemplate
		w.config.Template = DiscordTemplate
	}

	if cfg.Template != "" {
		tmpl, err := template.New("webhook").
			Funcs(w.getTemplateFuncs()).
			Parse(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTemplateParse, err)
		}

		w.tmpl = tmpl
	}

	return w, nil
}

func (w *WebhookAlerter) IsEnabled() bool {
	return w.config.Enabled
}

func (w *WebhookAlerter) getTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("JSON marshaling failed: %w", err)
			}

			return string(b), nil
		},
	}
}

func (w *WebhookAlerter) Alert(ctx context.Context, alert *WebhookAlert) error {
	if !w.IsEnabled() {
		w.logger.Debug("Webhook alerter disabled, skipping alert", zap.String("title", alert.Title))
		return ErrWebhookDisabled
	}

	if err := w.checkCooldown(alert.Title); err != nil {
		return err
	}

	if alert.Timestamp == "" {
		alert.Timestamp = w.now().UTC().Format(time.RFC3339)
	}

	payload, err := w.preparePayload(alert)
	if err != nil {
		return fmt.Errorf("failed to prepare payload: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookAlerter) checkCooldown(alertTitle string) error {
	cooldown := time.Duration(w.config.Cooldown)
	if cooldown <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()

	lastAlertTime, exists := w.lastAlertTimes[alertTitle]
	if exists && now.Sub(lastAlertTime) < cooldown {
		w.logger.Debug("Alert is within cooldown period, skipping", zap.String("title", alertTitle))
		return ErrWebhookCooldown
	}

	w.lastAlertTimes[alertTitle] = now

	return nil
}

func (w *WebhookAlerter) preparePayload(alert *WebhookAlert) ([]byte, error) {
	if w.tmpl == nil {
		b, err := json.Marshal(alert)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal alert: %w", err)
		}

		return b, nil
	}

	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	if err := w.tmpl.Execute(buf, map[string]interface{}{
		"alert": alert,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplateExecution, err)
	}

	if !json.Valid(buf.Bytes()) {
		return nil, ErrInvalidJSON
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (w *WebhookAlerter) sendRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			w.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("%w: status=%d body=%s", ErrWebhookStatus, resp.StatusCode, body)
	}

	return nil
}

func (w *WebhookAlerter) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}

// redactURL keeps scheme and host only; webhook paths usually carry tokens.
func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:i+3+j]
		}
	}

	return raw
}
