package audit

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Report aggregates the security posture of one integration over a period.
type Report struct {
	IntegrationID string    `json:"integration_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`

	Summary         map[EventType]int `json:"summary"`
	CriticalEvents  []Event           `json:"critical_events"`
	TopPhoneNumbers []PhoneCount      `json:"top_phone_numbers"`
	Recommendations []string          `json:"recommendations"`
}

type PhoneCount struct {
	PhoneNumber string `json:"phone_number"`
	Count       int    `json:"count"`
}

const topPhoneNumbersCap = 10

var ErrInvalidReportRange = errors.New("audit: invalid report range")

// GenerateSecurityReport builds a report from events strictly within
// [from, to], with recommendation strings derived from summary thresholds.
func (s *Service) GenerateSecurityReport(ctx context.Context, integrationID string, from, to time.Time) (Report, error) {
	if s.repo == nil {
		return Report{}, ErrRepoNotConfigured
	}
	if integrationID == "" {
		return Report{}, errors.New("audit: integration_id required")
	}
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return Report{}, ErrInvalidReportRange
	}

	events, err := s.repo.Query(ctx, integrationID, Filter{From: from, To: to})
	if err != nil {
		return Report{}, err
	}

	out := Report{
		IntegrationID:   integrationID,
		From:            from,
		To:              to,
		Summary:         map[EventType]int{},
		CriticalEvents:  []Event{},
		TopPhoneNumbers: []PhoneCount{},
	}

	phoneCounts := map[string]int{}
	for _, e := range events {
		out.Summary[e.Type]++
		if e.Severity == SeverityCritical {
			out.CriticalEvents = append(out.CriticalEvents, e)
		}
		if e.Metadata.PhoneNumber != "" {
			phoneCounts[e.Metadata.PhoneNumber]++
		}
	}

	for phone, n := range phoneCounts {
		out.TopPhoneNumbers = append(out.TopPhoneNumbers, PhoneCount{PhoneNumber: phone, Count: n})
	}
	sort.Slice(out.TopPhoneNumbers, func(i, j int) bool {
		a, b := out.TopPhoneNumbers[i], out.TopPhoneNumbers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.PhoneNumber < b.PhoneNumber
	})
	if len(out.TopPhoneNumbers) > topPhoneNumbersCap {
		out.TopPhoneNumbers = out.TopPhoneNumbers[:topPhoneNumbersCap]
	}

	out.Recommendations = recommendations(out.Summary)
	return out, nil
}

// recommendations derives heuristic guidance from summary counts.
func recommendations(summary map[EventType]int) []string {
	out := []string{}
	if summary[EventUnauthorizedAccess] > 5 {
		out = append(out, "High number of unauthorized access events; review verification strictness and recent block decisions.")
	}
	if summary[EventVerificationFailed] > 20 {
		out = append(out, "Elevated verification failures; consider tightening resend throttling on the verification flow.")
	}
	if summary[EventSuspiciousMessagePattern] > 10 {
		out = append(out, "Frequent suspicious message patterns; review the screening rule table and affected phone numbers.")
	}
	if summary[EventRateLimitExceeded] > 50 {
		out = append(out, "Sustained rate limit pressure; audit integration traffic sources or request a higher upstream tier.")
	}
	return out
}
