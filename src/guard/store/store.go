// Package store persists guard settings, keyword rules and pending verifications.
package store

import (
	"context"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
)

// Store is the durable record layer. Every method is atomic at the single-record level.
// Failures other than not-found are reported as guard.ErrStoreUnavailable.
type Store interface {
	// GetSettings returns the group's settings, creating the default row if absent.
	GetSettings(ctx context.Context, groupID int64) (guard.GuardSettings, error)
	UpdateSettings(ctx context.Context, groupID int64, patch guard.SettingsPatch) (guard.GuardSettings, error)
	EnsureSettings(ctx context.Context, groupIDs ...int64) error

	AddRule(ctx context.Context, groupID int64, pattern string, isRegex, caseSensitive bool) (guard.KeywordRule, error)
	RemoveRule(ctx context.Context, groupID, ruleID int64) (bool, error)
	ClearRules(ctx context.Context, groupID int64) (int64, error)
	// ListRules returns the group's rules in creation order.
	ListRules(ctx context.Context, groupID int64) ([]guard.KeywordRule, error)

	// UpsertPending stores p, replacing any record for the same group and user.
	UpsertPending(ctx context.Context, p guard.PendingVerification) (guard.PendingVerification, error)
	GetPending(ctx context.Context, groupID, userID int64) (guard.PendingVerification, error)
	GetPendingByToken(ctx context.Context, token string) (guard.PendingVerification, error)
	ListPending(ctx context.Context) ([]guard.PendingVerification, error)
	DeletePending(ctx context.Context, groupID, userID int64) error
	// ClaimPending deletes the record only while its token still equals token and reports
	// whether this call removed it.
	ClaimPending(ctx context.Context, groupID, userID int64, token string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
