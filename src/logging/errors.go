package logging

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// IsRateLimit reports whether err came from a platform rate limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}

// ErrorClass buckets an error for metric labels.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsRateLimit(err):
		return "rate_limited"
	default:
		return "error"
	}
}
