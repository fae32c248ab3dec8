package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qawatch/qawatch/internal/slackfeed"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		event   slackfeed.Event
		wantErr error
	}{
		{
			name: "plain message",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", AuthorID: "U123456",
				AuthorName: "dana", Text: "How do I deploy?", Type: slackfeed.EventMessage,
			},
		},
		{
			name: "missing ts",
			event: slackfeed.Event{
				ChannelID: "C1", Text: "hello",
			},
			wantErr: ErrNoID,
		},
		{
			name: "bot event",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", Text: "build passed", BotID: "B1",
			},
			wantErr: ErrBotEvent,
		},
		{
			name: "delete event",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", Type: slackfeed.EventDeleted,
			},
			wantErr: ErrDeleted,
		},
		{
			name: "unsupported event type",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", Text: "x", Type: "channel_join",
			},
			wantErr: ErrSubtype,
		},
		{
			name: "subtyped message",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", Text: "x",
				Type: slackfeed.EventMessage, Subtype: "thread_broadcast",
			},
			wantErr: ErrSubtype,
		},
		{
			name: "whitespace-only text",
			event: slackfeed.Event{
				TS: "1712345678.000100", ChannelID: "C1", Text: "   \n\t ",
			},
			wantErr: ErrEmptyText,
		},
		{
			name: "bad timestamp",
			event: slackfeed.Event{
				TS: "not-a-ts", ChannelID: "C1", Text: "hello",
			},
			wantErr: ErrRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Normalize(tt.event)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				assert.True(t, errors.Is(err, ErrRejected))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event.TS, msg.ID)
			assert.Equal(t, tt.event.ChannelID, msg.ChannelID)
			assert.NoError(t, msg.Validate())
		})
	}
}

func TestNormalizeEditFlag(t *testing.T) {
	msg, err := Normalize(slackfeed.Event{
		TS: "1712345678.000100", ChannelID: "C1", AuthorID: "U1",
		Text: "edited text", Type: slackfeed.EventChanged,
	})
	require.NoError(t, err)
	assert.True(t, msg.IsEdit)
}

func TestNormalizeTrimsText(t *testing.T) {
	msg, err := Normalize(slackfeed.Event{
		TS: "1712345678.000100", ChannelID: "C1", Text: "  hello  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
}

func TestFallbackName(t *testing.T) {
	msg, err := Normalize(slackfeed.Event{
		TS: "1712345678.000100", ChannelID: "C1", AuthorID: "U123456", Text: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "User3456", msg.AuthorName)

	msg, err = Normalize(slackfeed.Event{
		TS: "1712345678.000100", ChannelID: "C1", Text: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "UserUnknown", msg.AuthorName)
}
