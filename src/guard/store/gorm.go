package store

import (
	"context"
	"errors"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on MySQL or SQLite through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the guard tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return guard.ErrNotFound
	}
	return &guard.StoreError{Op: op, Err: err}
}

func ensureSettingsRow(tx *gorm.DB, groupID int64) error {
	row := settingsRow(guard.DefaultSettings(groupID))
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *GormStore) GetSettings(ctx context.Context, groupID int64) (guard.GuardSettings, error) {
	var row GuardSettingsRow
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := ensureSettingsRow(s.db.WithContext(ctx), groupID); err != nil {
			return guard.GuardSettings{}, wrap("get_settings", err)
		}
		err = s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&row).Error
	}
	if err != nil {
		return guard.GuardSettings{}, &guard.StoreError{Op: "get_settings", Err: err}
	}
	return row.toDomain(), nil
}

func (s *GormStore) EnsureSettings(ctx context.Context, groupIDs ...int64) error {
	for _, id := range groupIDs {
		if err := ensureSettingsRow(s.db.WithContext(ctx), id); err != nil {
			return wrap("ensure_settings", err)
		}
	}
	return nil
}

// UpdateSettings writes only the columns named in the patch, so concurrent patches that touch
// different fields do not overwrite each other.
func (s *GormStore) UpdateSettings(ctx context.Context, groupID int64, patch guard.SettingsPatch) (guard.GuardSettings, error) {
	var out guard.GuardSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSettingsRow(tx, groupID); err != nil {
			return err
		}
		var row GuardSettingsRow
		if err := tx.Where("group_id = ?", groupID).First(&row).Error; err != nil {
			return err
		}
		next := patch.Apply(row.toDomain())

		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if patch.VerificationEnabled != nil {
			updates["verification_enabled"] = next.VerificationEnabled
		}
		if patch.VerificationTimeout != nil {
			updates["verification_timeout"] = next.VerificationTimeout
		}
		if patch.ClearMessage || patch.VerificationMessage != nil {
			updates["verification_message"] = next.VerificationMessage
		}
		if patch.KeywordFilterEnabled != nil {
			updates["keyword_filter_enabled"] = next.KeywordFilterEnabled
		}
		if patch.KickOnTimeout != nil {
			updates["kick_on_timeout"] = next.KickOnTimeout
		}
		if err := tx.Model(&GuardSettingsRow{}).Where("group_id = ?", groupID).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).First(&row).Error; err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return guard.GuardSettings{}, &guard.StoreError{Op: "update_settings", Err: err}
	}
	return out, nil
}

func (s *GormStore) AddRule(ctx context.Context, groupID int64, pattern string, isRegex, caseSensitive bool) (guard.KeywordRule, error) {
	p, err := guard.ValidateRule(pattern, isRegex, caseSensitive)
	if err != nil {
		return guard.KeywordRule{}, err
	}
	row := KeywordRuleRow{
		GroupID:       groupID,
		Pattern:       p,
		IsRegex:       isRegex,
		CaseSensitive: caseSensitive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return guard.KeywordRule{}, &guard.StoreError{Op: "add_rule", Err: err}
	}
	return row.toDomain(), nil
}

func (s *GormStore) RemoveRule(ctx context.Context, groupID, ruleID int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("group_id = ? AND id = ?", groupID, ruleID).Delete(&KeywordRuleRow{})
	if res.Error != nil {
		return false, &guard.StoreError{Op: "remove_rule", Err: res.Error}
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ClearRules(ctx context.Context, groupID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("group_id = ?", groupID).Delete(&KeywordRuleRow{})
	if res.Error != nil {
		return 0, &guard.StoreError{Op: "clear_rules", Err: res.Error}
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ListRules(ctx context.Context, groupID int64) ([]guard.KeywordRule, error) {
	var rows []KeywordRuleRow
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, &guard.StoreError{Op: "list_rules", Err: err}
	}
	out := make([]guard.KeywordRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *GormStore) UpsertPending(ctx context.Context, p guard.PendingVerification) (guard.PendingVerification, error) {
	row := pendingRow(p)
	row.CreatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel_id", "message_id", "token", "expires_at", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return guard.PendingVerification{}, &guard.StoreError{Op: "upsert_pending", Err: err}
	}
	return row.toDomain(), nil
}

func (s *GormStore) GetPending(ctx context.Context, groupID, userID int64) (guard.PendingVerification, error) {
	var row PendingVerificationRow
	err := s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&row).Error
	if err != nil {
		return guard.PendingVerification{}, wrap("get_pending", err)
	}
	return row.toDomain(), nil
}

func (s *GormStore) GetPendingByToken(ctx context.Context, token string) (guard.PendingVerification, error) {
	var row PendingVerificationRow
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if err != nil {
		return guard.PendingVerification{}, wrap("get_pending_by_token", err)
	}
	return row.toDomain(), nil
}

func (s *GormStore) ListPending(ctx context.Context) ([]guard.PendingVerification, error) {
	var rows []PendingVerificationRow
	if err := s.db.WithContext(ctx).Order("expires_at ASC").Find(&rows).Error; err != nil {
		return nil, &guard.StoreError{Op: "list_pending", Err: err}
	}
	out := make([]guard.PendingVerification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *GormStore) DeletePending(ctx context.Context, groupID, userID int64) error {
	err := s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&PendingVerificationRow{}).Error
	if err != nil {
		return &guard.StoreError{Op: "delete_pending", Err: err}
	}
	return nil
}

func (s *GormStore) ClaimPending(ctx context.Context, groupID, userID int64, token string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND token = ?", groupID, userID, token).
		Delete(&PendingVerificationRow{})
	if res.Error != nil {
		return false, &guard.StoreError{Op: "claim_pending", Err: res.Error}
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&PendingVerificationRow{})
	if res.Error != nil {
		return 0, &guard.StoreError{Op: "purge_expired", Err: res.Error}
	}
	return res.RowsAffected, nil
}
