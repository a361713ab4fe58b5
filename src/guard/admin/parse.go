package admin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stake-plus/groupguard/src/guard"
)

// Usage is shown when a command cannot be parsed.
const Usage = "Usage: guard status | guard verify on|off|timeout <seconds>|message <text>|kick on|off | " +
	"guard keyword list|on|off|add <pattern> [--regex] [--case]|remove <id>|clear"

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "on", "enable", "enabled", "true", "yes":
		return true, true
	case "off", "disable", "disabled", "false", "no":
		return false, true
	}
	return false, false
}

func badArg(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadArgument, msg)
}

// ParseArgs turns the words following the guard command into a Request for groupID.
// No arguments means status.
func ParseArgs(groupID int64, args []string) (Request, error) {
	req := Request{GroupID: groupID, Action: ActionStatus}
	if len(args) == 0 {
		return req, nil
	}
	switch strings.ToLower(args[0]) {
	case "status", "show":
		return req, nil
	case "verify":
		return parseVerify(req, args[1:])
	case "keyword", "keywords":
		return parseKeyword(req, args[1:])
	}
	return req, badArg("unknown subcommand, use status, verify or keyword")
}

func parseVerify(req Request, args []string) (Request, error) {
	if len(args) == 0 {
		return req, nil
	}
	action := strings.ToLower(args[0])
	if on, ok := parseBool(action); ok {
		req.Action = ActionVerifyOff
		if on {
			req.Action = ActionVerifyOn
		}
		return req, nil
	}
	switch action {
	case "timeout":
		if len(args) < 2 {
			return req, badArg("give the timeout in seconds, for example: guard verify timeout 120")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return req, badArg("give the timeout in seconds, for example: guard verify timeout 120")
		}
		req.Action, req.Seconds = ActionSetTimeout, n
		return req, nil
	case "message":
		if len(args) < 2 {
			return req, badArg("give the verification message text")
		}
		req.Action, req.Message = ActionSetMessage, strings.Join(args[1:], " ")
		return req, nil
	case "kick":
		on, ok := false, false
		if len(args) > 1 {
			on, ok = parseBool(args[1])
		}
		if !ok {
			return req, badArg("use on or off to choose whether to remove members on timeout")
		}
		req.Action = ActionKickOff
		if on {
			req.Action = ActionKickOn
		}
		return req, nil
	}
	return req, badArg("unknown verify subcommand, use on, off, timeout, message or kick")
}

func parseKeyword(req Request, args []string) (Request, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "list") {
		req.Action = ActionKeywordList
		return req, nil
	}
	action := strings.ToLower(args[0])
	if on, ok := parseBool(action); ok {
		req.Action = ActionFilterOff
		if on {
			req.Action = ActionFilterOn
		}
		return req, nil
	}
	switch action {
	case "add":
		var words []string
		for _, tok := range args[1:] {
			switch strings.ToLower(tok) {
			case "--regex", "--re":
				req.IsRegex = true
			case "--case", "--case-sensitive":
				req.CaseSensitive = true
			default:
				words = append(words, tok)
			}
		}
		req.Pattern = strings.TrimSpace(strings.Join(words, " "))
		if req.Pattern == "" {
			return req, badArg("give the keyword to block, for example: guard keyword add spam --regex")
		}
		req.Action = ActionKeywordAdd
		return req, nil
	case "remove", "rm", "delete":
		if len(args) < 2 {
			return req, badArg("give a valid rule id, for example: guard keyword remove 3")
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(args[1], "#"), 10, 64)
		if err != nil || id <= 0 {
			return req, badArg("give a valid rule id, for example: guard keyword remove 3")
		}
		req.Action, req.RuleID = ActionKeywordRemove, id
		return req, nil
	case "clear":
		req.Action = ActionKeywordClear
		return req, nil
	}
	return req, badArg("unknown keyword subcommand, use list, on, off, add, remove or clear")
}

// ErrorText turns an Execute or ParseArgs error into the reply shown to the administrator.
func ErrorText(err error) string {
	var ruleErr *guard.RuleError
	switch {
	case errors.Is(err, ErrBadArgument):
		return strings.TrimPrefix(err.Error(), ErrBadArgument.Error()+": ") + "\n" + Usage
	case errors.As(err, &ruleErr):
		return "Invalid rule: " + ruleErr.Reason
	case errors.Is(err, ErrUnknownAction):
		return Usage
	case errors.Is(err, guard.ErrStoreUnavailable):
		return "Settings are temporarily unavailable, try again shortly."
	default:
		return "Something went wrong, try again later."
	}
}
