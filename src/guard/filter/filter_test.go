package filter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stake-plus/groupguard/src/guard"
	"go.uber.org/zap"
)

type stubSource struct {
	settings  guard.GuardSettings
	rules     []guard.KeywordRule
	err       error
	ruleReads int
}

func (s *stubSource) Settings(context.Context, int64) (guard.GuardSettings, error) {
	return s.settings, s.err
}

func (s *stubSource) Rules(context.Context, int64) ([]guard.KeywordRule, error) {
	s.ruleReads++
	return s.rules, nil
}

func enabled() guard.GuardSettings {
	s := guard.DefaultSettings(1)
	s.KeywordFilterEnabled = true
	return s
}

func TestMatch(t *testing.T) {
	rules := []guard.KeywordRule{
		{ID: 1, Pattern: "spam"},
		{ID: 2, Pattern: "Promo", CaseSensitive: true},
		{ID: 3, Pattern: `free\s+crypto`, IsRegex: true},
		{ID: 4, Pattern: `^URGENT`, IsRegex: true, CaseSensitive: true},
		{ID: 5, Pattern: "s"},
	}
	cases := []struct {
		name string
		text string
		want int64
	}{
		{"plain case-insensitive", "This is SPAM", 1},
		{"case-sensitive miss falls through", "promos here", 5},
		{"case-sensitive hit", "Promo code", 2},
		{"regex case-insensitive", "get FREE   Crypto today", 3},
		{"regex case-sensitive miss", "urgent: read", 0},
		{"regex case-sensitive hit", "URGENT: read", 4},
		{"no match", "hello there", 0},
		{"first match wins", "spam spam", 1},
	}
	e := New(&stubSource{settings: enabled(), rules: rules}, zap.NewNop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Match(context.Background(), 1, tc.text)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if tc.want == 0 {
				if got != nil {
					t.Fatalf("expected no match, got rule %d", got.ID)
				}
				return
			}
			if got == nil || got.ID != tc.want {
				t.Fatalf("got %+v, want rule %d", got, tc.want)
			}
		})
	}
}

func TestMatchDisabledSkipsRules(t *testing.T) {
	src := &stubSource{settings: guard.DefaultSettings(1), rules: []guard.KeywordRule{{ID: 1, Pattern: "spam"}}}
	e := New(src, nil)
	got, err := e.Match(context.Background(), 1, "spam")
	if err != nil || got != nil {
		t.Fatalf("disabled filter matched: %+v %v", got, err)
	}
	if src.ruleReads != 0 {
		t.Errorf("rules read while disabled: %d", src.ruleReads)
	}
}

func TestMatchSkipsInvalidRegex(t *testing.T) {
	src := &stubSource{settings: enabled(), rules: []guard.KeywordRule{
		{ID: 1, Pattern: "(broken", IsRegex: true},
		{ID: 2, Pattern: "broken"},
	}}
	e := New(src, zap.NewNop())
	for i := 0; i < 2; i++ {
		got, err := e.Match(context.Background(), 1, "(broken link")
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if got == nil || got.ID != 2 {
			t.Fatalf("got %+v, want rule 2", got)
		}
	}
	if len(e.memo) != 1 {
		t.Errorf("memo entries: got %d, want 1", len(e.memo))
	}
}

func TestMatchPropagatesSourceError(t *testing.T) {
	e := New(&stubSource{err: guard.ErrStoreUnavailable}, nil)
	if _, err := e.Match(context.Background(), 1, "x"); !errors.Is(err, guard.ErrStoreUnavailable) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestMemoKeyDistinguishesCase(t *testing.T) {
	a := memoKey(guard.KeywordRule{Pattern: "abc"})
	b := memoKey(guard.KeywordRule{Pattern: "abc", CaseSensitive: true})
	if a == b {
		t.Fatal("case-sensitive and insensitive rules share a memo key")
	}
}

func TestRegexMemoBounded(t *testing.T) {
	src := &stubSource{settings: enabled()}
	e := New(src, zap.NewNop())
	e.limit = 4
	for i := 0; i < 10; i++ {
		src.rules = []guard.KeywordRule{{ID: int64(i + 1), Pattern: fmt.Sprintf("word%d", i), IsRegex: true}}
		got, err := e.Match(context.Background(), 1, fmt.Sprintf("a word%d b", i))
		if err != nil || got == nil {
			t.Fatalf("Match %d: %v %v", i, got, err)
		}
		e.mu.RLock()
		n := len(e.memo)
		e.mu.RUnlock()
		if n > e.limit {
			t.Fatalf("memo grew to %d entries", n)
		}
	}
}
