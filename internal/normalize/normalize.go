// Package normalize converts raw inbound events into canonical messages.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qawatch/qawatch/internal/slackfeed"
	"github.com/qawatch/qawatch/internal/types"
)

// ErrRejected is the base error for events that never enter the
// pipeline. Check with errors.Is; the wrapped message names the reason.
var ErrRejected = errors.New("event rejected")

// Specific rejection reasons, all wrapping ErrRejected
var (
	ErrNoID      = fmt.Errorf("%w: missing stable message id", ErrRejected)
	ErrEmptyText = fmt.Errorf("%w: empty text", ErrRejected)
	ErrBotEvent  = fmt.Errorf("%w: bot-generated event", ErrRejected)
	ErrDeleted   = fmt.Errorf("%w: delete event", ErrRejected)
	ErrSubtype   = fmt.Errorf("%w: unsupported subtype", ErrRejected)
)

// Normalize converts a raw event into a canonical Message, or rejects
// it. Pure: no side effects beyond reading the event.
//
// For rejected events that still have a stable id (empty text, deletes)
// callers should record an Ignored marker using the raw event's id;
// ErrNoID rejections are silently discardable since there is nothing to
// deduplicate against.
func Normalize(ev slackfeed.Event) (types.Message, error) {
	if ev.TS == "" {
		return types.Message{}, ErrNoID
	}
	if ev.BotID != "" {
		return types.Message{}, ErrBotEvent
	}
	if ev.Type == slackfeed.EventDeleted {
		return types.Message{}, ErrDeleted
	}
	if ev.Type != "" && ev.Type != slackfeed.EventMessage && ev.Type != slackfeed.EventChanged {
		return types.Message{}, ErrSubtype
	}
	// Threaded replies, joins, and other subtyped events stay out of the
	// pipeline; only plain messages and edits carry Q&A signal here.
	if ev.Subtype != "" {
		return types.Message{}, ErrSubtype
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return types.Message{}, ErrEmptyText
	}

	ts, err := ev.Timestamp()
	if err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	authorName := ev.AuthorName
	if authorName == "" {
		authorName = fallbackName(ev.AuthorID)
	}

	return types.Message{
		ID:         ev.TS,
		ChannelID:  ev.ChannelID,
		AuthorID:   ev.AuthorID,
		AuthorName: authorName,
		Timestamp:  ts,
		Text:       text,
		IsEdit:     ev.Type == slackfeed.EventChanged,
	}, nil
}

// fallbackName derives a display name from an author id when the
// platform didn't resolve one
func fallbackName(authorID string) string {
	if authorID == "" {
		return "UserUnknown"
	}
	suffix := authorID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "User" + suffix
}
