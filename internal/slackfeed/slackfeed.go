// Package slackfeed defines the inbound message-event boundary. The
// chat-platform connectivity layer (delivery, auth, rate limiting) is an
// external collaborator; this package only carries its event shape, the
// source interfaces the drivers consume, and a JSONL file implementation
// used by the CLI and tests.
package slackfeed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Event types delivered by the platform
const (
	EventMessage = "message"         // New message
	EventChanged = "message_changed" // Edit of an existing message
	EventDeleted = "message_deleted" // Deletion of an existing message
)

// Event is a raw inbound message event as delivered by the platform.
// TS is the platform-stable message identifier and also encodes the
// delivery timestamp as fractional Unix seconds ("1712345678.000100").
type Event struct {
	TS         string `json:"ts"`
	ChannelID  string `json:"channel_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Type       string `json:"event_type"`
	BotID      string `json:"bot_id,omitempty"`
	Subtype    string `json:"subtype,omitempty"`
}

// Timestamp decodes the TS field into a time.Time
func (e Event) Timestamp() (time.Time, error) {
	if e.TS == "" {
		return time.Time{}, fmt.Errorf("event has no ts")
	}
	secs, err := strconv.ParseFloat(e.TS, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ts %q: %w", e.TS, err)
	}
	sec := int64(secs)
	nsec := int64((secs - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

// Source delivers a live, ordered event feed. The returned channel
// closes when the feed ends or ctx is canceled.
type Source interface {
	Events(ctx context.Context) (<-chan Event, error)
}

// History fetches stored messages for batch replay
type History interface {
	// Channels lists the channel IDs present in the history
	Channels(ctx context.Context) ([]string, error)
	// FetchMessages returns up to limit most recent events for a channel,
	// in delivery order
	FetchMessages(ctx context.Context, channelID string, limit int) ([]Event, error)
}

// FileFeed reads events from a JSONL file, one Event per line. It
// serves as both a realtime Source (streaming the file in order) and a
// batch History. Blank lines and '#' comment lines are skipped.
type FileFeed struct {
	path string
}

var (
	_ Source  = (*FileFeed)(nil)
	_ History = (*FileFeed)(nil)
)

// NewFileFeed creates a feed over the JSONL file at path
func NewFileFeed(path string) *FileFeed {
	return &FileFeed{path: path}
}

// Events streams the file's events in order
func (f *FileFeed) Events(ctx context.Context) (<-chan Event, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening event feed: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer file.Close()

		if err := streamEvents(ctx, file, out); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: event feed %s ended with error: %v\n", f.path, err)
		}
	}()
	return out, nil
}

// streamEvents scans r line by line and delivers decoded events on out.
// Returns the scanner's read error when the stream ends abnormally; a
// canceled ctx is a clean stop, not an error.
func streamEvents(ctx context.Context, r io.Reader, out chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := decodeLine(scanner.Text())
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event feed: %w", err)
	}
	return nil
}

// Channels lists the distinct channel IDs in the file
func (f *FileFeed) Channels(ctx context.Context) ([]string, error) {
	events, err := f.readAll()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var channels []string
	for _, ev := range events {
		if ev.ChannelID != "" && !seen[ev.ChannelID] {
			seen[ev.ChannelID] = true
			channels = append(channels, ev.ChannelID)
		}
	}
	return channels, nil
}

// FetchMessages returns up to limit most recent events for channelID,
// preserving file order
func (f *FileFeed) FetchMessages(ctx context.Context, channelID string, limit int) ([]Event, error) {
	events, err := f.readAll()
	if err != nil {
		return nil, err
	}
	var matched []Event
	for _, ev := range events {
		if ev.ChannelID == channelID {
			matched = append(matched, ev)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (f *FileFeed) readAll() ([]Event, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening event feed: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ev, ok := decodeLine(scanner.Text()); ok {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event feed: %w", err)
	}
	return events, nil
}

func decodeLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}
