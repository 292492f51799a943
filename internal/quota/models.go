package quota

import "time"

// WindowType is the time granularity a usage counter is bounded by.
type WindowType string

const (
	WindowPerSecond WindowType = "per_second"
	WindowPerMinute WindowType = "per_minute"
	WindowPerHour   WindowType = "per_hour"
	WindowPerDay    WindowType = "per_day"
)

// Duration returns the length of one window unit.
func (w WindowType) Duration() time.Duration {
	switch w {
	case WindowPerSecond:
		return time.Second
	case WindowPerMinute:
		return time.Minute
	case WindowPerHour:
		return time.Hour
	case WindowPerDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Truncate computes the canonical window start for an instant: the instant
// truncated to the granularity boundary (day boundaries are UTC midnight).
func (w WindowType) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case WindowPerSecond:
		return t.Truncate(time.Second)
	case WindowPerMinute:
		return t.Truncate(time.Minute)
	case WindowPerHour:
		return t.Truncate(time.Hour)
	case WindowPerDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Category is the endpoint family a call is billed against. The upstream
// Business API enforces independent limits per category.
type Category string

const (
	CategoryMessages  Category = "messages"
	CategoryMedia     Category = "media"
	CategoryTemplates Category = "templates"
)

// CategoryForEndpoint maps an API endpoint path to its billing category.
// Unknown endpoints fall into the messages category, the strictest family.
func CategoryForEndpoint(endpoint string) Category {
	switch endpoint {
	case "/media", "/media/upload", "/media/download":
		return CategoryMedia
	case "/templates", "/message_templates":
		return CategoryTemplates
	default:
		return CategoryMessages
	}
}

// limitTable holds the upstream per-category limits. Templates have no
// second/minute tier; absent entries mean the tier is not enforced.
var limitTable = map[Category]map[WindowType]int{
	CategoryMessages: {
		WindowPerSecond: 80,
		WindowPerMinute: 1000,
		WindowPerHour:   36000,
		WindowPerDay:    500000,
	},
	CategoryMedia: {
		WindowPerSecond: 50,
		WindowPerMinute: 500,
		WindowPerHour:   18000,
		WindowPerDay:    250000,
	},
	CategoryTemplates: {
		WindowPerHour: 100,
		WindowPerDay:  1000,
	},
}

// windowTypeOrder keeps tier iteration deterministic, shortest first.
var windowTypeOrder = []WindowType{WindowPerSecond, WindowPerMinute, WindowPerHour, WindowPerDay}

// Tiers returns the enforced (windowType, limit) pairs for a category,
// shortest granularity first.
func Tiers(c Category) []Tier {
	limits := limitTable[c]
	out := make([]Tier, 0, len(limits))
	for _, wt := range windowTypeOrder {
		if limit, ok := limits[wt]; ok {
			out = append(out, Tier{WindowType: wt, Limit: limit})
		}
	}
	return out
}

type Tier struct {
	WindowType WindowType
	Limit      int
}

// Alert thresholds, expressed as a used fraction of the limit.
const (
	defaultWarningThreshold  = 0.8
	defaultCriticalThreshold = 0.95
)

// Window is one usage counter for (integration, endpoint, window type).
//
// Invariants:
// - A window is active iff now < ResetsAt. An expired window is replaced,
//   never incremented.
// - RemainingQuota == max(0, LimitValue - CurrentUsage).
// - Unique per (integration_id, endpoint, window_type) in storage.
type Window struct {
	IntegrationID string     `json:"integration_id" db:"integration_id"`
	Endpoint      string     `json:"endpoint" db:"endpoint"`
	WindowType    WindowType `json:"window_type" db:"window_type"`

	LimitValue     int `json:"limit_value" db:"limit_value"`
	CurrentUsage   int `json:"current_usage" db:"current_usage"`
	RemainingQuota int `json:"remaining_quota" db:"remaining_quota"`

	WindowStart time.Time `json:"window_start" db:"window_start"`
	ResetsAt    time.Time `json:"resets_at" db:"resets_at"`

	WarningThreshold  float64    `json:"warning_threshold" db:"warning_threshold"`
	CriticalThreshold float64    `json:"critical_threshold" db:"critical_threshold"`
	LastAlertAt       *time.Time `json:"last_alert_at,omitempty" db:"last_alert_at"`
}

// Active reports whether the window still accepts usage at the instant.
func (w Window) Active(now time.Time) bool {
	return now.Before(w.ResetsAt)
}

// usedFraction is CurrentUsage relative to the limit.
func (w Window) usedFraction() float64 {
	if w.LimitValue <= 0 {
		return 0
	}
	return float64(w.CurrentUsage) / float64(w.LimitValue)
}

// newWindow builds a fresh window for the instant. The caller hands it
// to the store, which either increments the live row or installs this one.
func newWindow(integrationID, endpoint string, tier Tier, now time.Time) Window {
	start := tier.WindowType.Truncate(now)
	return Window{
		IntegrationID:     integrationID,
		Endpoint:          endpoint,
		WindowType:        tier.WindowType,
		LimitValue:        tier.Limit,
		CurrentUsage:      1,
		RemainingQuota:    tier.Limit - 1,
		WindowStart:       start,
		ResetsAt:          start.Add(tier.WindowType.Duration()),
		WarningThreshold:  defaultWarningThreshold,
		CriticalThreshold: defaultCriticalThreshold,
	}
}
