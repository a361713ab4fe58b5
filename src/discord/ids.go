package discord

import (
	"fmt"
	"strconv"
)

// ParseID converts a Discord snowflake to the numeric id used by the guard.
func ParseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("discord: invalid snowflake %q", id)
	}
	return n, nil
}

// FormatID is the inverse of ParseID.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Mention renders a user mention.
func Mention(userID int64) string {
	return "<@" + FormatID(userID) + ">"
}
