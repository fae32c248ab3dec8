package slackfeed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `# test feed
{"ts":"1712345678.000100","channel_id":"C1","author_id":"U1","author_name":"dana","text":"How do I deploy?","event_type":"message"}

{"ts":"1712345680.000200","channel_id":"C2","author_id":"U2","author_name":"sam","text":"Run make deploy","event_type":"message"}
{"ts":"1712345682.000300","channel_id":"C1","author_id":"U2","author_name":"sam","text":"With the deploy script","event_type":"message"}
not json at all
{"ts":"1712345684.000400","channel_id":"C1","author_id":"U3","text":"thanks","event_type":"message"}
`

func writeFeed(t *testing.T) *FileFeed {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleFeed), 0644))
	return NewFileFeed(path)
}

func TestEventTimestamp(t *testing.T) {
	ev := Event{TS: "1712345678.000100"}
	ts, err := ev.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1712345678, 0).UTC().Truncate(time.Second), ts.Truncate(time.Second))

	_, err = Event{}.Timestamp()
	assert.Error(t, err)
	_, err = Event{TS: "garbage"}.Timestamp()
	assert.Error(t, err)
}

func TestFileFeedEvents(t *testing.T) {
	feed := writeFeed(t)

	events, err := feed.Events(context.Background())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	// Comments, blanks, and unparseable lines are skipped
	require.Len(t, got, 4)
	assert.Equal(t, "1712345678.000100", got[0].TS)
	assert.Equal(t, "How do I deploy?", got[0].Text)
}

func TestFileFeedEventsCanceled(t *testing.T) {
	feed := writeFeed(t)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := feed.Events(ctx)
	require.NoError(t, err)

	<-events
	cancel()

	// Channel closes after cancellation
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed did not close after cancel")
		}
	}
}

// brokenReader yields its prefix then fails, like a feed whose
// underlying transport drops mid-stream
type brokenReader struct {
	prefix io.Reader
	err    error
}

func (b *brokenReader) Read(p []byte) (int, error) {
	n, err := b.prefix.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func TestStreamEventsReadError(t *testing.T) {
	readErr := fmt.Errorf("connection reset")
	r := &brokenReader{
		prefix: strings.NewReader(`{"ts":"1712345678.000100","channel_id":"C1","text":"hi","event_type":"message"}` + "\n"),
		err:    readErr,
	}

	out := make(chan Event, 4)
	err := streamEvents(context.Background(), r, out)
	close(out)

	// Events before the failure are still delivered, and the failure
	// surfaces instead of looking like a clean end of stream.
	require.ErrorIs(t, err, readErr)
	var got []Event
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "1712345678.000100", got[0].TS)
}

func TestStreamEventsCleanEnd(t *testing.T) {
	out := make(chan Event, 4)
	err := streamEvents(context.Background(), strings.NewReader(sampleFeed), out)
	close(out)

	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestFileFeedChannels(t *testing.T) {
	feed := writeFeed(t)

	channels, err := feed.Channels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, channels)
}

func TestFileFeedFetchMessages(t *testing.T) {
	feed := writeFeed(t)
	ctx := context.Background()

	t.Run("all for channel", func(t *testing.T) {
		events, err := feed.FetchMessages(ctx, "C1", 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		events, err := feed.FetchMessages(ctx, "C1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "1712345682.000300", events[0].TS)
		assert.Equal(t, "1712345684.000400", events[1].TS)
	})

	t.Run("unknown channel", func(t *testing.T) {
		events, err := feed.FetchMessages(ctx, "C9", 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestFileFeedMissingFile(t *testing.T) {
	feed := NewFileFeed(filepath.Join(t.TempDir(), "absent.jsonl"))
	_, err := feed.Events(context.Background())
	assert.Error(t, err)
	_, err = feed.Channels(context.Background())
	assert.Error(t, err)
}
