package orchestrator

import (
	"maps"
	"time"

	"metalsync/internal/provider"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseInitialLoading Phase = "initial_loading"
	PhaseReady          Phase = "ready"
	PhaseRefreshing     Phase = "refreshing"
)

// Reasons a manual refresh is declined.
const (
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonInFlight      = "in_flight"
)

// Status is the consumer-visible projection. It is rebuilt on every change
// and never persisted.
type Status struct {
	Phase              Phase            `json:"phase"`
	Quotes             []provider.Quote `json:"quotes"`
	Error              string           `json:"error,omitempty"`
	InitialLoading     bool             `json:"initialLoading"`
	Refreshing         bool             `json:"refreshing"`
	Loading            map[string]bool  `json:"loading"`
	LastUpdated        *time.Time       `json:"lastUpdated"`
	RemainingRefreshes int              `json:"remainingRefreshes"`
	RefreshLimit       int              `json:"refreshLimit"`
	ResetAt            *time.Time       `json:"resetAt"`
}

// RefreshResult answers a manual refresh request. Reason is empty when the
// refresh was allowed.
type RefreshResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Reason    string    `json:"reason,omitempty"`
}

func (s Status) clone() Status {
	out := s
	out.Quotes = provider.CloneQuotes(s.Quotes)
	if out.Quotes == nil {
		out.Quotes = []provider.Quote{}
	}
	out.Loading = maps.Clone(s.Loading)
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		out.LastUpdated = &t
	}
	if s.ResetAt != nil {
		t := *s.ResetAt
		out.ResetAt = &t
	}
	return out
}
