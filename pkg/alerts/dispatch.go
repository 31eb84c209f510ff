package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"go.uber.org/zap"
)

// FromAlarm converts a surfaced alarm into a webhook alert.
func FromAlarm(ev models.AlarmEvent, entity string) *WebhookAlert {
	level := Info

	switch ev.Severity.Rank() {
	case models.SeverityCritical.Rank():
		level = Error
	case models.SeverityWarning.Rank():
		level = Warning
	}

	a := &WebhookAlert{
		Level:    level,
		Title:    fmt.Sprintf("Alarm %s", ev.ID),
		Message:  ev.Message,
		EntityID: entity,
		Details: map[string]any{
			"alarm_id": ev.ID,
			"severity": string(ev.Severity),
		},
	}

	if !ev.Timestamp.IsZero() {
		a.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	}

	return a
}

// Dispatcher fans an alert out to every enabled service.
type Dispatcher struct {
	services []AlertService
	logger   *zap.Logger
}

// NewDispatcher skips nil and disabled services.
func NewDispatcher(logger *zap.Logger, services ...AlertService) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{logger: logger}

	for _, s := range services {
		if s != nil && s.IsEnabled() {
			d.services = append(d.services, s)
		}
	}

	return d
}

// Len returns the number of enabled services.
func (d *Dispatcher) Len() int {
	return len(d.services)
}

// Send delivers alert to every service. Cooldown skips are not failures.
// Each service receives its own copy since alerters may fill in fields.
func (d *Dispatcher) Send(ctx context.Context, alert *WebhookAlert) error {
	var errs []error

	for _, s := range d.services {
		a := *alert

		err := s.Alert(ctx, &a)

		switch {
		case err == nil:
		case errors.Is(err, ErrWebhookCooldown):
			d.logger.Debug("Alert suppressed by cooldown", zap.String("title", alert.Title))
		default:
			d.logger.Error("Failed to send alert", zap.String("title", alert.Title), zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
