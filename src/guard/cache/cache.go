// Package cache is a short-lived read-through cache for guard settings and keyword rules.
// Every mutation goes through Cache so the group's entries are dropped before the call returns.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/store"
	"go.uber.org/zap"
)

const DefaultTTL = 30 * time.Second

type Cache struct {
	store   store.Store
	backend Backend
	ttl     time.Duration
	log     *zap.Logger
}

func New(st store.Store, backend Backend, ttl time.Duration, log *zap.Logger) *Cache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: st, backend: backend, ttl: ttl, log: log}
}

func settingsKey(groupID int64) string { return "settings:" + strconv.FormatInt(groupID, 10) }
func rulesKey(groupID int64) string    { return "rules:" + strconv.FormatInt(groupID, 10) }

// Settings returns the group's settings, reading the store at most once per TTL.
func (c *Cache) Settings(ctx context.Context, groupID int64) (guard.GuardSettings, error) {
	var s guard.GuardSettings
	if c.load(ctx, settingsKey(groupID), &s) {
		return s, nil
	}
	s, err := c.store.GetSettings(ctx, groupID)
	if err != nil {
		return guard.GuardSettings{}, err
	}
	c.save(ctx, settingsKey(groupID), s)
	return s, nil
}

// Rules returns the group's rules in creation order.
func (c *Cache) Rules(ctx context.Context, groupID int64) ([]guard.KeywordRule, error) {
	var rules []guard.KeywordRule
	if c.load(ctx, rulesKey(groupID), &rules) {
		return rules, nil
	}
	rules, err := c.store.ListRules(ctx, groupID)
	if err != nil {
		return nil, err
	}
	c.save(ctx, rulesKey(groupID), rules)
	return rules, nil
}

// Invalidate drops both cached entries of the group.
func (c *Cache) Invalidate(ctx context.Context, groupID int64) error {
	if err := c.backend.Delete(ctx, settingsKey(groupID), rulesKey(groupID)); err != nil {
		return fmt.Errorf("invalidate group %d: %w", groupID, err)
	}
	return nil
}

func (c *Cache) UpdateSettings(ctx context.Context, groupID int64, patch guard.SettingsPatch) (guard.GuardSettings, error) {
	s, err := c.store.UpdateSettings(ctx, groupID, patch)
	if err != nil {
		return guard.GuardSettings{}, err
	}
	return s, c.Invalidate(ctx, groupID)
}

func (c *Cache) AddRule(ctx context.Context, groupID int64, pattern string, isRegex, caseSensitive bool) (guard.KeywordRule, error) {
	r, err := c.store.AddRule(ctx, groupID, pattern, isRegex, caseSensitive)
	if err != nil {
		return guard.KeywordRule{}, err
	}
	return r, c.Invalidate(ctx, groupID)
}

func (c *Cache) RemoveRule(ctx context.Context, groupID, ruleID int64) (bool, error) {
	ok, err := c.store.RemoveRule(ctx, groupID, ruleID)
	if err != nil {
		return false, err
	}
	return ok, c.Invalidate(ctx, groupID)
}

func (c *Cache) ClearRules(ctx context.Context, groupID int64) (int64, error) {
	n, err := c.store.ClearRules(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return n, c.Invalidate(ctx, groupID)
}

func (c *Cache) load(ctx context.Context, key string, dst interface{}) bool {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache: read failed, using store", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache: dropping undecodable entry", zap.String("key", key), zap.Error(err))
		_ = c.backend.Delete(ctx, key)
		return false
	}
	return true
}

func (c *Cache) save(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache: write failed", zap.String("key", key), zap.Error(err))
	}
}
