package quota

import (
	"context"
	"log/slog"
	"time"
)

// AlertLevel classifies a threshold crossing.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert describes one threshold crossing on one window. Delivery transport
// (email, Slack, pager) is owned by the sink implementation, not this layer.
type Alert struct {
	IntegrationID string     `json:"integration_id"`
	Endpoint      string     `json:"endpoint"`
	WindowType    WindowType `json:"window_type"`
	Level         AlertLevel `json:"level"`
	CurrentUsage  int        `json:"current_usage"`
	LimitValue    int        `json:"limit_value"`
	ResetsAt      time.Time  `json:"resets_at"`
}

// AlertSink receives quota threshold alerts. Implementations must be safe
// for concurrent use and should not block the tracked call.
type AlertSink interface {
	QuotaAlert(ctx context.Context, a Alert)
}

// LogAlertSink writes alerts to the structured log. It is the default sink
// until a real fan-out is wired.
type LogAlertSink struct {
	Log *slog.Logger
}

func (s LogAlertSink) QuotaAlert(ctx context.Context, a Alert) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"integration_id", a.IntegrationID,
		"endpoint", a.Endpoint,
		"window_type", string(a.WindowType),
		"usage", a.CurrentUsage,
		"limit", a.LimitValue,
		"resets_at", a.ResetsAt,
	}
	if a.Level == AlertCritical {
		log.Error("quota threshold critical", attrs...)
		return
	}
	log.Warn("quota threshold warning", attrs...)
}
