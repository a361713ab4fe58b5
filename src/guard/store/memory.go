package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
)

type pendingKey struct {
	group, user int64
}

// Memory is an in-process Store used by tests and single-node dry runs.
type Memory struct {
	mu       sync.Mutex
	settings map[int64]guard.GuardSettings
	rules    map[int64][]guard.KeywordRule
	pending  map[pendingKey]guard.PendingVerification
	nextRule int64
	fail     error
}

func NewMemory() *Memory {
	return &Memory{
		settings: make(map[int64]guard.GuardSettings),
		rules:    make(map[int64][]guard.KeywordRule),
		pending:  make(map[pendingKey]guard.PendingVerification),
	}
}

func (m *Memory) failed(op string) error {
	if m.fail != nil {
		return &guard.StoreError{Op: op, Err: m.fail}
	}
	return nil
}

// SetFail makes every subsequent call fail with err wrapped as a StoreError. Nil restores service.
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) settingsLocked(groupID int64) guard.GuardSettings {
	s, ok := m.settings[groupID]
	if !ok {
		s = guard.DefaultSettings(groupID)
		m.settings[groupID] = s
	}
	return s
}

func (m *Memory) GetSettings(_ context.Context, groupID int64) (guard.GuardSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("get_settings"); err != nil {
		return guard.GuardSettings{}, err
	}
	return m.settingsLocked(groupID), nil
}

func (m *Memory) EnsureSettings(_ context.Context, groupIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("ensure_settings"); err != nil {
		return err
	}
	for _, id := range groupIDs {
		m.settingsLocked(id)
	}
	return nil
}

func (m *Memory) UpdateSettings(_ context.Context, groupID int64, patch guard.SettingsPatch) (guard.GuardSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("update_settings"); err != nil {
		return guard.GuardSettings{}, err
	}
	s := patch.Apply(m.settingsLocked(groupID))
	m.settings[groupID] = s
	return s, nil
}

func (m *Memory) AddRule(_ context.Context, groupID int64, pattern string, isRegex, caseSensitive bool) (guard.KeywordRule, error) {
	p, err := guard.ValidateRule(pattern, isRegex, caseSensitive)
	if err != nil {
		return guard.KeywordRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("add_rule"); err != nil {
		return guard.KeywordRule{}, err
	}
	m.nextRule++
	r := guard.KeywordRule{
		ID:            m.nextRule,
		GroupID:       groupID,
		Pattern:       p,
		IsRegex:       isRegex,
		CaseSensitive: caseSensitive,
		CreatedAt:     time.Now().UTC(),
	}
	m.rules[groupID] = append(m.rules[groupID], r)
	return r, nil
}

func (m *Memory) RemoveRule(_ context.Context, groupID, ruleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("remove_rule"); err != nil {
		return false, err
	}
	rules := m.rules[groupID]
	for i, r := range rules {
		if r.ID == ruleID {
			m.rules[groupID] = append(rules[:i:i], rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ClearRules(_ context.Context, groupID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("clear_rules"); err != nil {
		return 0, err
	}
	n := int64(len(m.rules[groupID]))
	delete(m.rules, groupID)
	return n, nil
}

func (m *Memory) ListRules(_ context.Context, groupID int64) ([]guard.KeywordRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("list_rules"); err != nil {
		return nil, err
	}
	return append([]guard.KeywordRule(nil), m.rules[groupID]...), nil
}

func (m *Memory) UpsertPending(_ context.Context, p guard.PendingVerification) (guard.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("upsert_pending"); err != nil {
		return guard.PendingVerification{}, err
	}
	p.ExpiresAt = p.ExpiresAt.UTC()
	m.pending[pendingKey{p.GroupID, p.UserID}] = p
	return p, nil
}

func (m *Memory) GetPending(_ context.Context, groupID, userID int64) (guard.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("get_pending"); err != nil {
		return guard.PendingVerification{}, err
	}
	p, ok := m.pending[pendingKey{groupID, userID}]
	if !ok {
		return guard.PendingVerification{}, guard.ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetPendingByToken(_ context.Context, token string) (guard.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("get_pending_by_token"); err != nil {
		return guard.PendingVerification{}, err
	}
	for _, p := range m.pending {
		if p.Token == token {
			return p, nil
		}
	}
	return guard.PendingVerification{}, guard.ErrNotFound
}

func (m *Memory) ListPending(_ context.Context) ([]guard.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("list_pending"); err != nil {
		return nil, err
	}
	out := make([]guard.PendingVerification, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (m *Memory) DeletePending(_ context.Context, groupID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("delete_pending"); err != nil {
		return err
	}
	delete(m.pending, pendingKey{groupID, userID})
	return nil
}

func (m *Memory) ClaimPending(_ context.Context, groupID, userID int64, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("claim_pending"); err != nil {
		return false, err
	}
	k := pendingKey{groupID, userID}
	p, ok := m.pending[k]
	if !ok || p.Token != token {
		return false, nil
	}
	delete(m.pending, k)
	return true, nil
}

func (m *Memory) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("purge_expired"); err != nil {
		return 0, err
	}
	var n int64
	for k, p := range m.pending {
		if p.ExpiresAt.Before(now.UTC()) {
			delete(m.pending, k)
			n++
		}
	}
	return n, nil
}
