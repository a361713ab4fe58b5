// Package admin executes guard configuration commands issued by group administrators.
package admin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stake-plus/groupguard/src/guard"
	"go.uber.org/zap"
)

// Action is one admin operation.
type Action int

const (
	ActionStatus Action = iota + 1
	ActionVerifyOn
	ActionVerifyOff
	ActionSetTimeout
	ActionSetMessage
	ActionResetMessage
	ActionKickOn
	ActionKickOff
	ActionFilterOn
	ActionFilterOff
	ActionKeywordAdd
	ActionKeywordRemove
	ActionKeywordList
	ActionKeywordClear
)

var actionNames = map[Action]string{
	ActionStatus:        "status",
	ActionVerifyOn:      "verify_on",
	ActionVerifyOff:     "verify_off",
	ActionSetTimeout:    "set_timeout",
	ActionSetMessage:    "set_message",
	ActionResetMessage:  "reset_message",
	ActionKickOn:        "kick_on",
	ActionKickOff:       "kick_off",
	ActionFilterOn:      "filter_on",
	ActionFilterOff:     "filter_off",
	ActionKeywordAdd:    "keyword_add",
	ActionKeywordRemove: "keyword_remove",
	ActionKeywordList:   "keyword_list",
	ActionKeywordClear:  "keyword_clear",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// ParseAction maps a wire name such as "verify_on" to its Action.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

var (
	ErrUnknownAction = errors.New("unknown action")
	// ErrBadArgument carries a user-facing usage message.
	ErrBadArgument = errors.New("bad argument")
)

// Request is an admin command addressed to one group.
type Request struct {
	GroupID       int64
	Action        Action
	Seconds       int
	Message       string
	Pattern       string
	IsRegex       bool
	CaseSensitive bool
	RuleID        int64
}

// Result is the outcome of a command. Text is the reply shown to the administrator.
type Result struct {
	Text     string               `json:"text"`
	Settings *guard.GuardSettings `json:"settings,omitempty"`
	Rule     *guard.KeywordRule   `json:"rule,omitempty"`
	Rules    []guard.KeywordRule  `json:"rules,omitempty"`
	Removed  int64                `json:"removed,omitempty"`
}

// Config is the settings and rule surface the service mutates. All writes invalidate cached reads.
type Config interface {
	Settings(ctx context.Context, groupID int64) (guard.GuardSettings, error)
	Rules(ctx context.Context, groupID int64) ([]guard.KeywordRule, error)
	UpdateSettings(ctx context.Context, groupID int64, patch guard.SettingsPatch) (guard.GuardSettings, error)
	AddRule(ctx context.Context, groupID int64, pattern string, isRegex, caseSensitive bool) (guard.KeywordRule, error)
	RemoveRule(ctx context.Context, groupID, ruleID int64) (bool, error)
	ClearRules(ctx context.Context, groupID int64) (int64, error)
}

type handlerFunc func(s *Service, ctx context.Context, req Request) (Result, error)

var handlers = map[Action]handlerFunc{
	ActionStatus:        (*Service).status,
	ActionVerifyOn:      toggle(func(p *guard.SettingsPatch, v *bool) { p.VerificationEnabled = v }, true, "Join verification enabled."),
	ActionVerifyOff:     toggle(func(p *guard.SettingsPatch, v *bool) { p.VerificationEnabled = v }, false, "Join verification disabled."),
	ActionSetTimeout:    (*Service).setTimeout,
	ActionSetMessage:    (*Service).setMessage,
	ActionResetMessage:  (*Service).resetMessage,
	ActionKickOn:        toggle(func(p *guard.SettingsPatch, v *bool) { p.KickOnTimeout = v }, true, "Unverified members will be removed on timeout."),
	ActionKickOff:       toggle(func(p *guard.SettingsPatch, v *bool) { p.KickOnTimeout = v }, false, "Unverified members will stay restricted on timeout."),
	ActionFilterOn:      toggle(func(p *guard.SettingsPatch, v *bool) { p.KeywordFilterEnabled = v }, true, "Keyword filter enabled."),
	ActionFilterOff:     toggle(func(p *guard.SettingsPatch, v *bool) { p.KeywordFilterEnabled = v }, false, "Keyword filter disabled."),
	ActionKeywordAdd:    (*Service).addKeyword,
	ActionKeywordRemove: (*Service).removeKeyword,
	ActionKeywordList:   (*Service).listKeywords,
	ActionKeywordClear:  (*Service).clearKeywords,
}

// ResetTokens reset the challenge message to the default when given as the new message.
var ResetTokens = map[string]struct{}{"-": {}, "default": {}, "reset": {}, "cancel": {}}

type Service struct {
	cfg      Config
	sanitize *bluemonday.Policy
	log      *zap.Logger
}

func NewService(cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, sanitize: bluemonday.StrictPolicy(), log: log}
}

// Execute runs req. Validation failures wrap ErrBadArgument or guard.ErrInvalidRule and carry a
// message suitable for the administrator.
func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	h, ok := handlers[req.Action]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
	res, err := h(s, ctx, req)
	if err != nil {
		return Result{}, err
	}
	s.log.Info("admin: action applied", zap.Int64("group_id", req.GroupID), zap.Stringer("action", req.Action))
	return res, nil
}

func toggle(set func(*guard.SettingsPatch, *bool), value bool, text string) handlerFunc {
	return func(s *Service, ctx context.Context, req Request) (Result, error) {
		var patch guard.SettingsPatch
		v := value
		set(&patch, &v)
		updated, err := s.cfg.UpdateSettings(ctx, req.GroupID, patch)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Settings: &updated}, nil
	}
}

func (s *Service) status(ctx context.Context, req Request) (Result, error) {
	settings, err := s.cfg.Settings(ctx, req.GroupID)
	if err != nil {
		return Result{}, err
	}
	rules, err := s.cfg.Rules(ctx, req.GroupID)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: StatusText(settings, len(rules)), Settings: &settings}, nil
}

func (s *Service) setTimeout(ctx context.Context, req Request) (Result, error) {
	if req.Seconds <= 0 {
		return Result{}, fmt.Errorf("%w: give the timeout in seconds, for example 120", ErrBadArgument)
	}
	seconds := req.Seconds
	updated, err := s.cfg.UpdateSettings(ctx, req.GroupID, guard.SettingsPatch{VerificationTimeout: &seconds})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: fmt.Sprintf("Verification timeout set to %d seconds.", updated.VerificationTimeout), Settings: &updated}, nil
}

func (s *Service) setMessage(ctx context.Context, req Request) (Result, error) {
	msg := strings.TrimSpace(req.Message)
	if _, ok := ResetTokens[strings.ToLower(msg)]; ok {
		return s.resetMessage(ctx, req)
	}
	msg = strings.TrimSpace(html.UnescapeString(s.sanitize.Sanitize(msg)))
	if msg == "" {
		return Result{}, fmt.Errorf("%w: the verification message must not be empty", ErrBadArgument)
	}
	if utf8.RuneCountInString(msg) > guard.MaxMessageLength {
		return Result{}, fmt.Errorf("%w: the verification message must be at most %d characters", ErrBadArgument, guard.MaxMessageLength)
	}
	updated, err := s.cfg.UpdateSettings(ctx, req.GroupID, guard.SettingsPatch{VerificationMessage: &msg})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: "Verification message updated: " + *updated.VerificationMessage, Settings: &updated}, nil
}

func (s *Service) resetMessage(ctx context.Context, req Request) (Result, error) {
	updated, err := s.cfg.UpdateSettings(ctx, req.GroupID, guard.SettingsPatch{ClearMessage: true})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: "Verification message reset to the default.", Settings: &updated}, nil
}

func (s *Service) addKeyword(ctx context.Context, req Request) (Result, error) {
	rule, err := s.cfg.AddRule(ctx, req.GroupID, req.Pattern, req.IsRegex, req.CaseSensitive)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: "Added rule " + RuleLine(rule), Rule: &rule}, nil
}

func (s *Service) removeKeyword(ctx context.Context, req Request) (Result, error) {
	if req.RuleID <= 0 {
		return Result{}, fmt.Errorf("%w: give a valid rule id, for example 3", ErrBadArgument)
	}
	removed, err := s.cfg.RemoveRule(ctx, req.GroupID, req.RuleID)
	if err != nil {
		return Result{}, err
	}
	if !removed {
		return Result{Text: fmt.Sprintf("Rule #%d not found.", req.RuleID)}, nil
	}
	return Result{Text: fmt.Sprintf("Rule #%d removed.", req.RuleID), Removed: 1}, nil
}

func (s *Service) listKeywords(ctx context.Context, req Request) (Result, error) {
	rules, err := s.cfg.Rules(ctx, req.GroupID)
	if err != nil {
		return Result{}, err
	}
	if len(rules) == 0 {
		return Result{Text: "No keyword rules configured.", Rules: rules}, nil
	}
	lines := make([]string, 0, len(rules)+1)
	lines = append(lines, "Keyword rules:")
	for _, r := range rules {
		lines = append(lines, RuleLine(r))
	}
	return Result{Text: strings.Join(lines, "\n"), Rules: rules}, nil
}

func (s *Service) clearKeywords(ctx context.Context, req Request) (Result, error) {
	n, err := s.cfg.ClearRules(ctx, req.GroupID)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: fmt.Sprintf("Removed %d keyword rules.", n), Removed: n}, nil
}

// RuleLine renders a rule as "#id: pattern (regex, case)".
func RuleLine(r guard.KeywordRule) string {
	line := fmt.Sprintf("#%d: %s", r.ID, r.Pattern)
	if flags := r.Flags(); len(flags) > 0 {
		line += " (" + strings.Join(flags, ", ") + ")"
	}
	return line
}

// StatusText summarises the group's guard configuration.
func StatusText(s guard.GuardSettings, ruleCount int) string {
	onOff := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}
	failure := "keep restricted"
	if s.KickOnTimeout {
		failure = "remove from server"
	}
	prompt := "default"
	if s.VerificationMessage != nil {
		prompt = *s.VerificationMessage
	}
	return strings.Join([]string{
		"Guard settings",
		"",
		"Join verification: " + onOff(s.VerificationEnabled),
		fmt.Sprintf("Verification timeout: %d seconds", s.VerificationTimeout),
		"On timeout: " + failure,
		"Verification message: " + prompt,
		"",
		"Keyword filter: " + onOff(s.KeywordFilterEnabled),
		fmt.Sprintf("Keyword rules: %d", ruleCount),
	}, "\n")
}
