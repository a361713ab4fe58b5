package guard

import (
	"strings"
	"time"
)

const (
	MinVerificationTimeout     = 15
	MaxVerificationTimeout     = 3600
	DefaultVerificationTimeout = 60

	MaxPatternLength = 512
	MaxMessageLength = 400
)

// GuardSettings is the per-group guard policy.
type GuardSettings struct {
	GroupID              int64   `json:"groupId"`
	VerificationEnabled  bool    `json:"verificationEnabled"`
	VerificationTimeout  int     `json:"verificationTimeout"`
	VerificationMessage  *string `json:"verificationMessage,omitempty"`
	KeywordFilterEnabled bool    `json:"keywordFilterEnabled"`
	KickOnTimeout        bool    `json:"kickOnTimeout"`
}

// DefaultSettings returns the policy used for groups without a stored row.
func DefaultSettings(groupID int64) GuardSettings {
	return GuardSettings{
		GroupID:             groupID,
		VerificationTimeout: DefaultVerificationTimeout,
		KickOnTimeout:       true,
	}
}

// Timeout returns the clamped verification window.
func (s GuardSettings) Timeout() time.Duration {
	return time.Duration(ClampTimeout(s.VerificationTimeout)) * time.Second
}

// ClampTimeout bounds a timeout in seconds to [MinVerificationTimeout, MaxVerificationTimeout].
func ClampTimeout(seconds int) int {
	return max(MinVerificationTimeout, min(seconds, MaxVerificationTimeout))
}

// SettingsPatch carries a partial settings update. Nil fields are left untouched.
// ClearMessage resets the challenge template to the built-in default.
type SettingsPatch struct {
	VerificationEnabled  *bool
	VerificationTimeout  *int
	VerificationMessage  *string
	ClearMessage         bool
	KeywordFilterEnabled *bool
	KickOnTimeout        *bool
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.VerificationEnabled == nil &&
		p.VerificationTimeout == nil &&
		p.VerificationMessage == nil &&
		!p.ClearMessage &&
		p.KeywordFilterEnabled == nil &&
		p.KickOnTimeout == nil
}

// Apply returns s with the patch applied, clamping the timeout.
func (p SettingsPatch) Apply(s GuardSettings) GuardSettings {
	if p.VerificationEnabled != nil {
		s.VerificationEnabled = *p.VerificationEnabled
	}
	if p.VerificationTimeout != nil {
		s.VerificationTimeout = ClampTimeout(*p.VerificationTimeout)
	}
	if p.ClearMessage {
		s.VerificationMessage = nil
	} else if p.VerificationMessage != nil {
		msg := strings.TrimSpace(*p.VerificationMessage)
		if msg == "" {
			s.VerificationMessage = nil
		} else {
			s.VerificationMessage = &msg
		}
	}
	if p.KeywordFilterEnabled != nil {
		s.KeywordFilterEnabled = *p.KeywordFilterEnabled
	}
	if p.KickOnTimeout != nil {
		s.KickOnTimeout = *p.KickOnTimeout
	}
	return s
}

// KeywordRule is a single filter entry. Rules are immutable once stored.
type KeywordRule struct {
	ID            int64     `json:"id"`
	GroupID       int64     `json:"groupId"`
	Pattern       string    `json:"pattern"`
	IsRegex       bool      `json:"isRegex"`
	CaseSensitive bool      `json:"caseSensitive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Flags renders the rule modifiers the way listings and notices show them.
func (r KeywordRule) Flags() []string {
	var flags []string
	if r.IsRegex {
		flags = append(flags, "regex")
	}
	if r.CaseSensitive {
		flags = append(flags, "case")
	}
	return flags
}

// MessageRef locates a message on the platform.
type MessageRef struct {
	ChannelID int64 `json:"channelId"`
	MessageID int64 `json:"messageId"`
}

// PendingVerification is an outstanding challenge for one member of one group.
type PendingVerification struct {
	GroupID   int64       `json:"groupId"`
	UserID    int64       `json:"userId"`
	Message   *MessageRef `json:"message,omitempty"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the challenge window has closed at now.
func (p PendingVerification) Expired(now time.Time) bool {
	return !now.UTC().Before(p.ExpiresAt.UTC())
}
