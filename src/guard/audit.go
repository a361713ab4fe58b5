package guard

import (
	"context"
	"time"
)

// Outcome names a terminal or notable transition of the guard.
type Outcome string

const (
	OutcomeChallenged         Outcome = "challenged"
	OutcomeVerified           Outcome = "verified"
	OutcomeTimedOutKicked     Outcome = "timed_out_kicked"
	OutcomeTimedOutRestricted Outcome = "timed_out_restricted"
	OutcomeSuperseded         Outcome = "superseded"
	OutcomeMismatch           Outcome = "mismatch"
	OutcomeKeywordHit         Outcome = "keyword_hit"
)

// AuditEvent is published after each guard decision.
type AuditEvent struct {
	Outcome Outcome
	GroupID int64
	UserID  int64
	RuleID  int64
	At      time.Time
}

// EventSink receives audit events. Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, ev AuditEvent) error
}

// NopSink discards audit events.
type NopSink struct{}

func (NopSink) Publish(context.Context, AuditEvent) error { return nil }
