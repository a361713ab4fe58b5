// Package verify runs the join challenge: restrict, post a confirm button, then resolve the
// challenge exactly once by confirmation or by timeout.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/store"
	"github.com/stake-plus/groupguard/src/metrics"
	"go.uber.org/zap"
)

const (
	answerVerified   = "Verified, welcome aboard!"
	answerExpired    = "This verification has expired. Please contact a moderator."
	answerGone       = "This verification was already completed or has expired."
	answerResolved   = "This verification was already completed."
	answerWrongUser  = "Only the member being verified can press this button."
	answerWrongGroup = "This verification belongs to a different server."
	answerRetry      = "Verification is temporarily unavailable, please try again."

	// kickBanWindow bounds the temporary ban used to remove a member without blocklisting them.
	kickBanWindow = time.Minute
)

// SettingsSource reads the current settings for a group.
type SettingsSource interface {
	Settings(ctx context.Context, groupID int64) (guard.GuardSettings, error)
}

// Options tune an Orchestrator. Zero values select the defaults.
type Options struct {
	// RetryBackoff delays a timeout job whose store read failed.
	RetryBackoff time.Duration
	// JobTimeout bounds the work done by one timeout job.
	JobTimeout time.Duration
	Now        func() time.Time
	NewToken   func() (string, error)
}

// Orchestrator owns the per-member verification state machine. The store's conditional delete
// is the only arbitration between a confirmation and a timeout.
type Orchestrator struct {
	platform guard.Platform
	store    store.Store
	settings SettingsSource
	sched    Scheduler
	sink     guard.EventSink
	log      *zap.Logger

	retryBackoff time.Duration
	jobTimeout   time.Duration
	now          func() time.Time
	newToken     func() (string, error)
}

func New(platform guard.Platform, st store.Store, settings SettingsSource, sched Scheduler, sink guard.EventSink, log *zap.Logger, opts Options) *Orchestrator {
	if sched == nil {
		sched = NewTimerScheduler()
	}
	if sink == nil {
		sink = guard.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		platform:     platform,
		store:        st,
		settings:     settings,
		sched:        sched,
		sink:         sink,
		log:          log,
		retryBackoff: opts.RetryBackoff,
		jobTimeout:   opts.JobTimeout,
		now:          opts.Now,
		newToken:     opts.NewToken,
	}
	if o.retryBackoff <= 0 {
		o.retryBackoff = 5 * time.Second
	}
	if o.jobTimeout <= 0 {
		o.jobTimeout = 30 * time.Second
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newToken == nil {
		o.newToken = guard.NewToken
	}
	return o
}

// Join challenges a newly joined member when verification is enabled for the group.
// A rejoin while a challenge is outstanding replaces it.
func (o *Orchestrator) Join(ctx context.Context, ev guard.MemberJoined) error {
	if ev.IsBot || ev.UserID == o.platform.SelfID() {
		return nil
	}
	settings, err := o.settings.Settings(ctx, ev.GroupID)
	if err != nil {
		return fmt.Errorf("join: load settings: %w", err)
	}
	if !settings.VerificationEnabled {
		return nil
	}

	prior, err := o.store.GetPending(ctx, ev.GroupID, ev.UserID)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, guard.ErrNotFound) {
		return fmt.Errorf("join: read pending: %w", err)
	}

	token, err := o.newToken()
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}

	if err := o.platform.Restrict(ctx, ev.GroupID, ev.UserID); err != nil {
		o.platformFailed("restrict", err, ev.GroupID, ev.UserID)
	}

	timeout := guard.ClampTimeout(settings.VerificationTimeout)
	expires := o.now().UTC().Add(time.Duration(timeout) * time.Second)
	template := ""
	if settings.VerificationMessage != nil {
		template = *settings.VerificationMessage
	}
	text := Render(template, o.platform.Mention(ev.UserID), ev.GroupName, timeout)

	ref, err := o.platform.SendMessage(ctx, ev.GroupID, text, token)
	if err != nil {
		o.platformFailed("send_challenge", err, ev.GroupID, ev.UserID)
		ref = nil
	}

	rec, err := o.store.UpsertPending(ctx, guard.PendingVerification{
		GroupID:   ev.GroupID,
		UserID:    ev.UserID,
		Message:   ref,
		Token:     token,
		ExpiresAt: expires,
	})
	if err != nil {
		if ref != nil {
			if derr := o.platform.DeleteMessage(ctx, ev.GroupID, *ref); derr != nil {
				o.platformFailed("delete_challenge", derr, ev.GroupID, ev.UserID)
			}
		}
		if !hadPrior {
			if uerr := o.platform.Unrestrict(ctx, ev.GroupID, ev.UserID); uerr != nil {
				o.platformFailed("unrestrict", uerr, ev.GroupID, ev.UserID)
			}
		}
		return fmt.Errorf("join: save pending: %w", err)
	}

	if hadPrior {
		if prior.Token != rec.Token {
			o.sched.Cancel(Key{GroupID: prior.GroupID, UserID: prior.UserID, Token: prior.Token})
		}
		if prior.Message != nil {
			if err := o.platform.DeleteMessage(ctx, ev.GroupID, *prior.Message); err != nil {
				o.platformFailed("delete_challenge", err, ev.GroupID, ev.UserID)
			}
		}
		o.record(ctx, guard.OutcomeSuperseded, ev.GroupID, ev.UserID)
	}

	o.schedule(rec)
	o.log.Info("verify: challenge posted",
		zap.Int64("group_id", ev.GroupID), zap.Int64("user_id", ev.UserID),
		zap.Time("expires_at", rec.ExpiresAt), zap.Bool("message_sent", ref != nil))
	o.record(ctx, guard.OutcomeChallenged, ev.GroupID, ev.UserID)
	return nil
}

// Confirm handles a press of the confirm button. Callbacks that do not carry a verification
// token are ignored. It returns guard.ErrMismatch when the token belongs to another member.
func (o *Orchestrator) Confirm(ctx context.Context, ev guard.CallbackReceived) error {
	token, ok := guard.ParseCallbackData(ev.Data)
	if !ok {
		return nil
	}

	p, err := o.store.GetPendingByToken(ctx, token)
	if errors.Is(err, guard.ErrNotFound) {
		o.answer(ctx, ev, answerGone, true)
		return nil
	}
	if err != nil {
		o.answer(ctx, ev, answerRetry, true)
		return fmt.Errorf("confirm: read pending: %w", err)
	}

	if p.GroupID != ev.GroupID || p.UserID != ev.UserID {
		o.log.Warn("verify: confirm from wrong member rejected",
			zap.Int64("group_id", ev.GroupID), zap.Int64("user_id", ev.UserID),
			zap.Int64("pending_group_id", p.GroupID), zap.Int64("pending_user_id", p.UserID))
		if p.GroupID != ev.GroupID {
			o.answer(ctx, ev, answerWrongGroup, true)
		} else {
			o.answer(ctx, ev, answerWrongUser, true)
		}
		o.record(ctx, guard.OutcomeMismatch, ev.GroupID, ev.UserID)
		return guard.ErrMismatch
	}

	if p.Expired(o.now()) {
		o.answer(ctx, ev, answerExpired, true)
		if err := o.resolveTimeout(ctx, Key{GroupID: p.GroupID, UserID: p.UserID, Token: p.Token}); err != nil {
			return fmt.Errorf("confirm: resolve expired: %w", err)
		}
		return nil
	}

	claimed, err := o.store.ClaimPending(ctx, p.GroupID, p.UserID, token)
	if err != nil {
		o.answer(ctx, ev, answerRetry, true)
		return fmt.Errorf("confirm: claim: %w", err)
	}
	if !claimed {
		o.answer(ctx, ev, answerResolved, false)
		return nil
	}

	if err := o.platform.Unrestrict(ctx, p.GroupID, p.UserID); err != nil {
		o.platformFailed("unrestrict", err, p.GroupID, p.UserID)
	}
	if p.Message != nil {
		if err := o.platform.DeleteMessage(ctx, p.GroupID, *p.Message); err != nil {
			o.platformFailed("delete_challenge", err, p.GroupID, p.UserID)
		}
	}
	o.answer(ctx, ev, answerVerified, false)

	welcome := o.platform.Mention(p.UserID) + " verified successfully, welcome!"
	if _, err := o.platform.SendMessage(ctx, p.GroupID, welcome, ""); err != nil {
		o.platformFailed("send_welcome", err, p.GroupID, p.UserID)
	}

	o.log.Info("verify: member verified", zap.Int64("group_id", p.GroupID), zap.Int64("user_id", p.UserID))
	o.record(ctx, guard.OutcomeVerified, p.GroupID, p.UserID)
	return nil
}

// Resume re-arms a timeout job for every stored challenge. Already expired challenges resolve
// as soon as their timer fires.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	pending, err := o.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}
	for _, p := range pending {
		o.schedule(p)
	}
	if len(pending) > 0 {
		o.log.Info("verify: resumed pending verifications", zap.Int("count", len(pending)))
	}
	return len(pending), nil
}

// Stop cancels armed timers. Outstanding challenges stay in the store for Resume.
func (o *Orchestrator) Stop() {
	o.sched.Stop()
}

func (o *Orchestrator) schedule(p guard.PendingVerification) {
	o.scheduleAt(Key{GroupID: p.GroupID, UserID: p.UserID, Token: p.Token}, p.ExpiresAt)
}

func (o *Orchestrator) scheduleAt(key Key, at time.Time) {
	o.sched.Schedule(key, at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.jobTimeout)
		defer cancel()
		if err := o.resolveTimeout(ctx, key); err != nil {
			o.log.Warn("verify: timeout job failed, retrying",
				zap.Int64("group_id", key.GroupID), zap.Int64("user_id", key.UserID),
				zap.Duration("backoff", o.retryBackoff), zap.Error(err))
			o.scheduleAt(key, o.now().Add(o.retryBackoff))
		}
	})
}

// resolveTimeout acts on an expired challenge if key still names the current one. Only store
// failures are returned; the caller decides whether to retry.
func (o *Orchestrator) resolveTimeout(ctx context.Context, key Key) error {
	cur, err := o.store.GetPending(ctx, key.GroupID, key.UserID)
	if errors.Is(err, guard.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.Token != key.Token {
		return nil
	}
	if !cur.Expired(o.now()) {
		o.scheduleAt(key, cur.ExpiresAt)
		return nil
	}

	claimed, err := o.store.ClaimPending(ctx, key.GroupID, key.UserID, key.Token)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if cur.Message != nil {
		if err := o.platform.DeleteMessage(ctx, cur.GroupID, *cur.Message); err != nil {
			o.platformFailed("delete_challenge", err, cur.GroupID, cur.UserID)
		}
	}

	settings, err := o.settings.Settings(ctx, cur.GroupID)
	if err != nil {
		o.log.Warn("verify: settings unavailable at timeout, using defaults",
			zap.Int64("group_id", cur.GroupID), zap.Error(err))
		settings = guard.DefaultSettings(cur.GroupID)
	}

	mention := o.platform.Mention(cur.UserID)
	outcome := guard.OutcomeTimedOutRestricted
	notice := mention + " did not complete verification and remains restricted."
	if settings.KickOnTimeout {
		outcome = guard.OutcomeTimedOutKicked
		notice = mention + " did not complete verification and was removed."
		if err := o.platform.Ban(ctx, cur.GroupID, cur.UserID, o.now().Add(kickBanWindow)); err != nil {
			o.platformFailed("ban", err, cur.GroupID, cur.UserID)
		} else if err := o.platform.Unban(ctx, cur.GroupID, cur.UserID); err != nil {
			o.platformFailed("unban", err, cur.GroupID, cur.UserID)
		}
	}
	if _, err := o.platform.SendMessage(ctx, cur.GroupID, notice, ""); err != nil {
		o.platformFailed("send_timeout_notice", err, cur.GroupID, cur.UserID)
	}

	o.log.Info("verify: verification timed out",
		zap.Int64("group_id", cur.GroupID), zap.Int64("user_id", cur.UserID), zap.String("outcome", string(outcome)))
	o.record(ctx, outcome, cur.GroupID, cur.UserID)
	return nil
}

func (o *Orchestrator) answer(ctx context.Context, ev guard.CallbackReceived, text string, alert bool) {
	if err := o.platform.AnswerCallback(ctx, ev.CallbackID, text, alert); err != nil {
		o.platformFailed("answer_callback", err, ev.GroupID, ev.UserID)
	}
}

func (o *Orchestrator) platformFailed(op string, err error, groupID, userID int64) {
	metrics.RecordPlatformError(op, err)
	o.log.Warn("verify: platform call failed",
		zap.String("op", op), zap.Int64("group_id", groupID), zap.Int64("user_id", userID), zap.Error(err))
}

func (o *Orchestrator) record(ctx context.Context, outcome guard.Outcome, groupID, userID int64) {
	metrics.RecordVerification(string(outcome))
	ev := guard.AuditEvent{Outcome: outcome, GroupID: groupID, UserID: userID, At: o.now().UTC()}
	if err := o.sink.Publish(ctx, ev); err != nil {
		o.log.Debug("verify: audit publish failed", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}
