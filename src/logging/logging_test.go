package logging

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("unknown member"), false},
		{"status text", errors.New("HTTP 429 Too Many Requests"), true},
		{"rate limit error", fmt.Errorf("ban: %w", &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{TooManyRequests: &discordgo.TooManyRequests{}, URL: "/guilds"}}), true},
		{"rest 429", &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}, true},
		{"rest 403", &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}, ResponseBody: []byte("{}")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRateLimit(tc.err); got != tc.want {
				t.Errorf("IsRateLimit: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorClass(t *testing.T) {
	if ErrorClass(nil) != "none" || ErrorClass(errors.New("429")) != "rate_limited" || ErrorClass(errors.New("x")) != "error" {
		t.Error("unexpected error classes")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
	log, err := New("debug", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}
}
