package guard

import (
	"context"
	"time"
)

// Platform is the messaging surface the guard drives. Group and user identifiers are the
// platform's numeric ids.
type Platform interface {
	// SelfID is the bot's own user id.
	SelfID() int64
	// Mention renders a reference to userID that the platform displays as the member's name.
	Mention(userID int64) string

	Restrict(ctx context.Context, groupID, userID int64) error
	Unrestrict(ctx context.Context, groupID, userID int64) error
	Ban(ctx context.Context, groupID, userID int64, until time.Time) error
	Unban(ctx context.Context, groupID, userID int64) error

	// SendMessage posts text to the group's guard channel. A non-empty actionToken attaches a
	// single confirm button carrying CallbackData(actionToken).
	SendMessage(ctx context.Context, groupID int64, text, actionToken string) (*MessageRef, error)
	DeleteMessage(ctx context.Context, groupID int64, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Event is one inbound platform event.
type Event interface {
	Group() int64
}

// MemberJoined is delivered for every member added to a group.
type MemberJoined struct {
	GroupID     int64
	GroupName   string
	UserID      int64
	DisplayName string
	IsBot       bool
}

func (e MemberJoined) Group() int64 { return e.GroupID }

// MessageReceived is delivered for every message posted in a group.
type MessageReceived struct {
	GroupID int64
	UserID  int64
	IsBot   bool
	Text    string
	Message MessageRef
}

func (e MessageReceived) Group() int64 { return e.GroupID }

// CallbackReceived is delivered when a member presses a confirm button.
type CallbackReceived struct {
	GroupID    int64
	UserID     int64
	CallbackID string
	Data       string
}

func (e CallbackReceived) Group() int64 { return e.GroupID }
