// Package handlers routes inbound platform events to the guard components.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Verifier is the verification flow as seen by the dispatcher.
type Verifier interface {
	Join(ctx context.Context, ev guard.MemberJoined) error
	Confirm(ctx context.Context, ev guard.CallbackReceived) error
}

// Matcher finds the keyword rule a message violates, if any.
type Matcher interface {
	Match(ctx context.Context, groupID int64, text string) (*guard.KeywordRule, error)
}

type Options struct {
	// NoticeTTL is how long a keyword notice stays up before it is removed.
	NoticeTTL time.Duration
	// NoticeRate and NoticeBurst bound keyword notices per group. Deletion is never limited.
	NoticeRate  rate.Limit
	NoticeBurst int
	// EventTimeout bounds the handling of a single event.
	EventTimeout time.Duration
}

type groupLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Dispatcher struct {
	platform guard.Platform
	verifier Verifier
	matcher  Matcher
	sink     guard.EventSink
	log      *zap.Logger
	opts     Options

	afterFunc func(time.Duration, func())

	mu       sync.Mutex
	limiters map[int64]*groupLimiter

	wg sync.WaitGroup
}

func New(platform guard.Platform, verifier Verifier, matcher Matcher, sink guard.EventSink, log *zap.Logger, opts Options) *Dispatcher {
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = 30 * time.Second
	}
	if opts.NoticeRate <= 0 {
		opts.NoticeRate = rate.Every(5 * time.Second)
	}
	if opts.NoticeBurst <= 0 {
		opts.NoticeBurst = 3
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 30 * time.Second
	}
	if sink == nil {
		sink = guard.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		platform:  platform,
		verifier:  verifier,
		matcher:   matcher,
		sink:      sink,
		log:       log,
		opts:      opts,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		limiters:  make(map[int64]*groupLimiter),
	}
}

// Dispatch handles ev on its own goroutine and returns immediately.
func (d *Dispatcher) Dispatch(ev guard.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.EventTimeout)
		defer cancel()
		if err := d.Handle(ctx, ev); err != nil {
			level := d.log.Error
			if errors.Is(err, guard.ErrMismatch) {
				level = d.log.Warn
			}
			level("handlers: event failed", zap.Int64("group_id", ev.Group()), zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
		}
	}()
}

// Wait blocks until every dispatched event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle processes one event synchronously.
func (d *Dispatcher) Handle(ctx context.Context, ev guard.Event) error {
	switch e := ev.(type) {
	case guard.MemberJoined:
		return d.verifier.Join(ctx, e)
	case guard.MessageReceived:
		return d.onMessage(ctx, e)
	case guard.CallbackReceived:
		return d.verifier.Confirm(ctx, e)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

func (d *Dispatcher) onMessage(ctx context.Context, msg guard.MessageReceived) error {
	if msg.IsBot || msg.UserID == d.platform.SelfID() || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	rule, err := d.matcher.Match(ctx, msg.GroupID, msg.Text)
	if err != nil {
		return fmt.Errorf("keyword filter: %w", err)
	}
	if rule == nil {
		return nil
	}

	metrics.RecordKeywordHit()
	if err := d.platform.DeleteMessage(ctx, msg.GroupID, msg.Message); err != nil {
		metrics.RecordPlatformError("delete_message", err)
		d.log.Warn("handlers: failed to delete filtered message",
			zap.Int64("group_id", msg.GroupID), zap.Int64("message_id", msg.Message.MessageID), zap.Error(err))
	}
	d.log.Info("handlers: keyword rule matched",
		zap.Int64("group_id", msg.GroupID), zap.Int64("user_id", msg.UserID), zap.Int64("rule_id", rule.ID))
	if err := d.sink.Publish(ctx, guard.AuditEvent{
		Outcome: guard.OutcomeKeywordHit, GroupID: msg.GroupID, UserID: msg.UserID, RuleID: rule.ID, At: time.Now().UTC(),
	}); err != nil {
		d.log.Debug("handlers: audit publish failed", zap.Error(err))
	}

	if !d.allowNotice(msg.GroupID) {
		return nil
	}
	ref, err := d.platform.SendMessage(ctx, msg.GroupID, KeywordNotice(d.platform.Mention(msg.UserID), *rule), "")
	if err != nil {
		metrics.RecordPlatformError("send_keyword_notice", err)
		d.log.Warn("handlers: failed to send keyword notice", zap.Int64("group_id", msg.GroupID), zap.Error(err))
		return nil
	}
	if ref != nil {
		notice := *ref
		groupID := msg.GroupID
		d.afterFunc(d.opts.NoticeTTL, func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.opts.EventTimeout)
			defer cancel()
			if err := d.platform.DeleteMessage(ctx, groupID, notice); err != nil {
				d.log.Debug("handlers: keyword notice already gone", zap.Int64("group_id", groupID), zap.Error(err))
			}
		})
	}
	return nil
}

// KeywordNotice is the moderation notice posted after a filtered message is removed.
func KeywordNotice(mention string, rule guard.KeywordRule) string {
	flags := ""
	if f := rule.Flags(); len(f) > 0 {
		flags = " (" + strings.Join(f, ", ") + ")"
	}
	return fmt.Sprintf("%s triggered keyword rule #%d%s, the message was removed.", mention, rule.ID, flags)
}

func (d *Dispatcher) allowNotice(groupID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	l, ok := d.limiters[groupID]
	if !ok {
		l = &groupLimiter{limiter: rate.NewLimiter(d.opts.NoticeRate, d.opts.NoticeBurst)}
		d.limiters[groupID] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// PruneLimiters forgets notice limiters idle for longer than idle.
func (d *Dispatcher) PruneLimiters(idle time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, l := range d.limiters {
		if time.Since(l.lastSeen) > idle {
			delete(d.limiters, id)
			n++
		}
	}
	return n
}
