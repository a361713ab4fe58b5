package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RegexSource returns the expression compiled for a regex rule.
func RegexSource(pattern string, caseSensitive bool) string {
	if caseSensitive {
		return pattern
	}
	return "(?i)" + pattern
}

// ValidateRule trims and checks a rule pattern, returning the normalised pattern or a *RuleError.
func ValidateRule(pattern string, isRegex, caseSensitive bool) (string, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return "", &RuleError{Reason: "keyword must not be empty"}
	}
	if utf8.RuneCountInString(p) > MaxPatternLength {
		return "", &RuleError{Reason: fmt.Sprintf("keyword must be at most %d characters", MaxPatternLength)}
	}
	if isRegex {
		if _, err := regexp.Compile(RegexSource(p, caseSensitive)); err != nil {
			return "", &RuleError{Reason: fmt.Sprintf("invalid regular expression: %v", err)}
		}
	}
	return p, nil
}
