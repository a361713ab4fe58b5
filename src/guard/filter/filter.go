// Package filter matches group messages against keyword rules.
package filter

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/stake-plus/groupguard/src/guard"
	"go.uber.org/zap"
)

// RuleSource supplies settings and ordered rules for a group.
type RuleSource interface {
	Settings(ctx context.Context, groupID int64) (guard.GuardSettings, error)
	Rules(ctx context.Context, groupID int64) ([]guard.KeywordRule, error)
}

// maxCompiled caps the regex memo. Once full it is reset, dropping patterns of deleted rules.
const maxCompiled = 1024

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Engine decides whether a message violates a rule. It has no side effects beyond logging.
type Engine struct {
	src RuleSource
	log *zap.Logger

	mu    sync.RWMutex
	memo  map[uint64]compiled
	limit int
}

func New(src RuleSource, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{src: src, log: log, memo: make(map[uint64]compiled), limit: maxCompiled}
}

// Match returns the first rule, in creation order, that matches text. A nil rule means no match
// or the filter is disabled for the group.
func (e *Engine) Match(ctx context.Context, groupID int64, text string) (*guard.KeywordRule, error) {
	if text == "" {
		return nil, nil
	}
	settings, err := e.src.Settings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !settings.KeywordFilterEnabled {
		return nil, nil
	}
	rules, err := e.src.Rules(ctx, groupID)
	if err != nil {
		return nil, err
	}

	folded := strings.ToLower(text)
	for i := range rules {
		r := rules[i]
		if r.IsRegex {
			re, err := e.regex(r)
			if err != nil {
				e.log.Warn("filter: skipping invalid regex rule",
					zap.Int64("group_id", groupID), zap.Int64("rule_id", r.ID), zap.Error(err))
				continue
			}
			if re.MatchString(text) {
				return &r, nil
			}
			continue
		}
		if r.CaseSensitive {
			if strings.Contains(text, r.Pattern) {
				return &r, nil
			}
		} else if strings.Contains(folded, strings.ToLower(r.Pattern)) {
			return &r, nil
		}
	}
	return nil, nil
}

func memoKey(r guard.KeywordRule) uint64 {
	h := xxhash.NewS64(0)
	if r.CaseSensitive {
		h.Write([]byte("c:"))
	} else {
		h.Write([]byte("i:"))
	}
	h.Write([]byte(r.Pattern))
	return h.Sum64()
}

func (e *Engine) regex(r guard.KeywordRule) (*regexp.Regexp, error) {
	key := memoKey(r)
	e.mu.RLock()
	c, ok := e.memo[key]
	e.mu.RUnlock()
	if ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(guard.RegexSource(r.Pattern, r.CaseSensitive))
	e.mu.Lock()
	if len(e.memo) >= e.limit {
		clear(e.memo)
	}
	e.memo[key] = compiled{re: re, err: err}
	e.mu.Unlock()
	return re, err
}
