package verify

import (
	"strconv"
	"strings"
)

// DefaultTemplate is posted when a group has no custom challenge message.
const DefaultTemplate = "Welcome {user} to {chat}!\n" +
	"Press the button below within {timeout} seconds to verify, otherwise you will not be able to post."

const (
	fallbackMember = "new member"
	fallbackGroup  = "this server"
)

// Render fills the {user}, {chat} and {timeout} placeholders. Unknown braces are left as typed.
func Render(template, user, chat string, timeoutSeconds int) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	if user == "" {
		user = fallbackMember
	}
	if chat == "" {
		chat = fallbackGroup
	}
	r := strings.NewReplacer(
		"{user}", user,
		"{chat}", chat,
		"{timeout}", strconv.Itoa(timeoutSeconds),
	)
	return r.Replace(template)
}
