package store

import (
	"time"

	"github.com/stake-plus/groupguard/src/guard"
)

// GuardSettingsRow is the per-group settings table.
type GuardSettingsRow struct {
	GroupID              int64   `gorm:"primaryKey;autoIncrement:false"`
	VerificationEnabled  bool    `gorm:"not null"`
	VerificationTimeout  int     `gorm:"not null"`
	VerificationMessage  *string `gorm:"type:text"`
	KeywordFilterEnabled bool    `gorm:"not null"`
	KickOnTimeout        bool    `gorm:"not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (GuardSettingsRow) TableName() string { return "group_guard_settings" }

// KeywordRuleRow is a keyword filter rule.
type KeywordRuleRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	GroupID       int64  `gorm:"not null;index:idx_guard_keyword_group"`
	Pattern       string `gorm:"type:text;not null"`
	IsRegex       bool   `gorm:"not null"`
	CaseSensitive bool   `gorm:"not null"`
	CreatedAt     time.Time
}

func (KeywordRuleRow) TableName() string { return "group_guard_keyword_rules" }

// PendingVerificationRow is an outstanding challenge, keyed by group and user.
type PendingVerificationRow struct {
	GroupID   int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64     `gorm:"primaryKey;autoIncrement:false"`
	ChannelID *int64    `gorm:""`
	MessageID *int64    `gorm:""`
	Token     string    `gorm:"size:64;not null;uniqueIndex:idx_guard_pending_token"`
	ExpiresAt time.Time `gorm:"not null;index:idx_guard_pending_expires"`
	CreatedAt time.Time
}

func (PendingVerificationRow) TableName() string { return "group_guard_pending_verifications" }

// Models lists every table owned by the guard, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&GuardSettingsRow{}, &KeywordRuleRow{}, &PendingVerificationRow{}}
}

func (r GuardSettingsRow) toDomain() guard.GuardSettings {
	timeout := r.VerificationTimeout
	if timeout == 0 {
		timeout = guard.DefaultVerificationTimeout
	}
	return guard.GuardSettings{
		GroupID:              r.GroupID,
		VerificationEnabled:  r.VerificationEnabled,
		VerificationTimeout:  guard.ClampTimeout(timeout),
		VerificationMessage:  r.VerificationMessage,
		KeywordFilterEnabled: r.KeywordFilterEnabled,
		KickOnTimeout:        r.KickOnTimeout,
	}
}

func settingsRow(s guard.GuardSettings) GuardSettingsRow {
	return GuardSettingsRow{
		GroupID:              s.GroupID,
		VerificationEnabled:  s.VerificationEnabled,
		VerificationTimeout:  s.VerificationTimeout,
		VerificationMessage:  s.VerificationMessage,
		KeywordFilterEnabled: s.KeywordFilterEnabled,
		KickOnTimeout:        s.KickOnTimeout,
	}
}

func (r KeywordRuleRow) toDomain() guard.KeywordRule {
	return guard.KeywordRule{
		ID:            r.ID,
		GroupID:       r.GroupID,
		Pattern:       r.Pattern,
		IsRegex:       r.IsRegex,
		CaseSensitive: r.CaseSensitive,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (r PendingVerificationRow) toDomain() guard.PendingVerification {
	p := guard.PendingVerification{
		GroupID:   r.GroupID,
		UserID:    r.UserID,
		Token:     r.Token,
		ExpiresAt: r.ExpiresAt.UTC(),
	}
	if r.MessageID != nil {
		ref := guard.MessageRef{MessageID: *r.MessageID}
		if r.ChannelID != nil {
			ref.ChannelID = *r.ChannelID
		}
		p.Message = &ref
	}
	return p
}

func pendingRow(p guard.PendingVerification) PendingVerificationRow {
	row := PendingVerificationRow{
		GroupID:   p.GroupID,
		UserID:    p.UserID,
		Token:     p.Token,
		ExpiresAt: p.ExpiresAt.UTC(),
	}
	if p.Message != nil {
		channelID, messageID := p.Message.ChannelID, p.Message.MessageID
		row.ChannelID = &channelID
		row.MessageID = &messageID
	}
	return row
}
