package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stake-plus/groupguard/src/guard"
	"github.com/stake-plus/groupguard/src/guard/cache"
	"github.com/stake-plus/groupguard/src/guard/store"
	"go.uber.org/zap"
)

func newService() *Service {
	c := cache.New(store.NewMemory(), nil, time.Hour, zap.NewNop())
	return NewService(c, zap.NewNop())
}

func run(t *testing.T, s *Service, req Request) Result {
	t.Helper()
	res, err := s.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute(%s): %v", req.Action, err)
	}
	return res
}

func TestToggleActions(t *testing.T) {
	s := newService()
	cases := []struct {
		action Action
		check  func(guard.GuardSettings) bool
	}{
		{ActionVerifyOn, func(g guard.GuardSettings) bool { return g.VerificationEnabled }},
		{ActionVerifyOff, func(g guard.GuardSettings) bool { return !g.VerificationEnabled }},
		{ActionKickOff, func(g guard.GuardSettings) bool { return !g.KickOnTimeout }},
		{ActionKickOn, func(g guard.GuardSettings) bool { return g.KickOnTimeout }},
		{ActionFilterOn, func(g guard.GuardSettings) bool { return g.KeywordFilterEnabled }},
		{ActionFilterOff, func(g guard.GuardSettings) bool { return !g.KeywordFilterEnabled }},
	}
	for _, tc := range cases {
		t.Run(tc.action.String(), func(t *testing.T) {
			res := run(t, s, Request{GroupID: 1, Action: tc.action})
			if res.Settings == nil || !tc.check(*res.Settings) {
				t.Fatalf("settings after %s: %+v", tc.action, res.Settings)
			}
			status := run(t, s, Request{GroupID: 1, Action: ActionStatus})
			if !tc.check(*status.Settings) {
				t.Fatalf("status read stale settings after %s", tc.action)
			}
		})
	}
}

func TestSetTimeoutClamps(t *testing.T) {
	s := newService()
	res := run(t, s, Request{GroupID: 1, Action: ActionSetTimeout, Seconds: 5})
	if res.Settings.VerificationTimeout != guard.MinVerificationTimeout {
		t.Errorf("timeout: %d", res.Settings.VerificationTimeout)
	}
	if res.Text != "Verification timeout set to 15 seconds." {
		t.Errorf("reply: %q", res.Text)
	}
	if _, err := s.Execute(context.Background(), Request{GroupID: 1, Action: ActionSetTimeout}); !errors.Is(err, ErrBadArgument) {
		t.Errorf("missing seconds: %v", err)
	}
}

func TestSetMessage(t *testing.T) {
	s := newService()
	res := run(t, s, Request{GroupID: 1, Action: ActionSetMessage, Message: "<b>Hi</b> {user} & friends"})
	if got := *res.Settings.VerificationMessage; got != "Hi {user} & friends" {
		t.Errorf("sanitized message: %q", got)
	}

	res = run(t, s, Request{GroupID: 1, Action: ActionSetMessage, Message: "-"})
	if res.Settings.VerificationMessage != nil {
		t.Errorf("reset token kept message: %q", *res.Settings.VerificationMessage)
	}

	long := strings.Repeat("x", guard.MaxMessageLength+1)
	if _, err := s.Execute(context.Background(), Request{GroupID: 1, Action: ActionSetMessage, Message: long}); !errors.Is(err, ErrBadArgument) {
		t.Errorf("long message: %v", err)
	}
	if _, err := s.Execute(context.Background(), Request{GroupID: 1, Action: ActionSetMessage, Message: "<i></i>"}); !errors.Is(err, ErrBadArgument) {
		t.Errorf("empty message: %v", err)
	}
}

func TestKeywordActions(t *testing.T) {
	s := newService()
	add := run(t, s, Request{GroupID: 1, Action: ActionKeywordAdd, Pattern: `buy\s+now`, IsRegex: true, CaseSensitive: true})
	if add.Text != `Added rule #1: buy\s+now (regex, case)` {
		t.Errorf("add reply: %q", add.Text)
	}
	run(t, s, Request{GroupID: 1, Action: ActionKeywordAdd, Pattern: "spam"})

	list := run(t, s, Request{GroupID: 1, Action: ActionKeywordList})
	want := "Keyword rules:\n#1: buy\\s+now (regex, case)\n#2: spam"
	if list.Text != want {
		t.Errorf("list:\n%s\nwant:\n%s", list.Text, want)
	}

	if _, err := s.Execute(context.Background(), Request{GroupID: 1, Action: ActionKeywordAdd, Pattern: "(", IsRegex: true}); !errors.Is(err, guard.ErrInvalidRule) {
		t.Errorf("invalid regex: %v", err)
	}

	rm := run(t, s, Request{GroupID: 1, Action: ActionKeywordRemove, RuleID: 2})
	if rm.Removed != 1 {
		t.Errorf("remove: %+v", rm)
	}
	rm = run(t, s, Request{GroupID: 1, Action: ActionKeywordRemove, RuleID: 2})
	if rm.Removed != 0 || rm.Text != "Rule #2 not found." {
		t.Errorf("second remove: %+v", rm)
	}

	cleared := run(t, s, Request{GroupID: 1, Action: ActionKeywordClear})
	if cleared.Removed != 1 {
		t.Errorf("clear: %+v", cleared)
	}
	if list := run(t, s, Request{GroupID: 1, Action: ActionKeywordList}); list.Text != "No keyword rules configured." {
		t.Errorf("empty list: %q", list.Text)
	}
}

func TestStatusText(t *testing.T) {
	s := newService()
	run(t, s, Request{GroupID: 1, Action: ActionKeywordAdd, Pattern: "spam"})
	res := run(t, s, Request{GroupID: 1, Action: ActionStatus})
	for _, line := range []string{
		"Join verification: disabled",
		"Verification timeout: 60 seconds",
		"On timeout: remove from server",
		"Verification message: default",
		"Keyword filter: disabled",
		"Keyword rules: 1",
	} {
		if !strings.Contains(res.Text, line) {
			t.Errorf("status missing %q:\n%s", line, res.Text)
		}
	}
}

func TestUnknownAction(t *testing.T) {
	if _, err := newService().Execute(context.Background(), Request{Action: Action(99)}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := ParseAction("explode"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("ParseAction: %v", err)
	}
	if a, err := ParseAction(" Keyword_Add "); err != nil || a != ActionKeywordAdd {
		t.Fatalf("ParseAction: %v %v", a, err)
	}
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		in      string
		want    Request
		wantErr bool
	}{
		{"", Request{GroupID: 9, Action: ActionStatus}, false},
		{"status", Request{GroupID: 9, Action: ActionStatus}, false},
		{"verify on", Request{GroupID: 9, Action: ActionVerifyOn}, false},
		{"verify disable", Request{GroupID: 9, Action: ActionVerifyOff}, false},
		{"verify timeout 120", Request{GroupID: 9, Action: ActionSetTimeout, Seconds: 120}, false},
		{"verify timeout soon", Request{}, true},
		{"verify message Hello {user} !", Request{GroupID: 9, Action: ActionSetMessage, Message: "Hello {user} !"}, false},
		{"verify kick off", Request{GroupID: 9, Action: ActionKickOff}, false},
		{"verify kick", Request{}, true},
		{"keyword", Request{GroupID: 9, Action: ActionKeywordList}, false},
		{"keywords on", Request{GroupID: 9, Action: ActionFilterOn}, false},
		{"keyword add buy now --regex --CASE", Request{GroupID: 9, Action: ActionKeywordAdd, Pattern: "buy now", IsRegex: true, CaseSensitive: true}, false},
		{"keyword add --regex", Request{}, true},
		{"keyword remove #3", Request{GroupID: 9, Action: ActionKeywordRemove, RuleID: 3}, false},
		{"keyword remove x", Request{}, true},
		{"keyword clear", Request{GroupID: 9, Action: ActionKeywordClear}, false},
		{"nuke", Request{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseArgs(9, strings.Fields(tc.in))
			if tc.wantErr {
				if !errors.Is(err, ErrBadArgument) {
					t.Fatalf("expected ErrBadArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	_, err := ParseArgs(1, []string{"verify", "timeout"})
	if got := ErrorText(err); !strings.HasPrefix(got, "give the timeout in seconds") || !strings.HasSuffix(got, Usage) {
		t.Errorf("bad argument: %q", got)
	}
	_, err = newService().Execute(context.Background(), Request{GroupID: 1, Action: ActionKeywordAdd, Pattern: "(", IsRegex: true})
	if got := ErrorText(err); !strings.HasPrefix(got, "Invalid rule: ") {
		t.Errorf("rule error: %q", got)
	}
	if got := ErrorText(&guard.StoreError{Op: "get_settings", Err: errors.New("down")}); !strings.Contains(got, "temporarily unavailable") {
		t.Errorf("store error: %q", got)
	}
}
