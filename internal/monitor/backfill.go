package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qawatch/qawatch/internal/config"
	"github.com/qawatch/qawatch/internal/engine"
	"github.com/qawatch/qawatch/internal/normalize"
	"github.com/qawatch/qawatch/internal/slackfeed"
	"github.com/qawatch/qawatch/internal/types"
)

// maxConcurrentChannels bounds parallel channel replays. Within a
// channel replay is strictly sequential.
const maxConcurrentChannels = 4

// Backfill replays channel history through the linking engine. Replay
// is idempotent: messages already decided hit their markers and are
// skipped, so running backfill over the same history twice changes
// nothing.
type Backfill struct {
	engine  *engine.Engine
	history slackfeed.History
	cfg     config.Config
}

// NewBackfill creates a history replay runner
func NewBackfill(eng *engine.Engine, history slackfeed.History, cfg config.Config) *Backfill {
	return &Backfill{
		engine:  eng,
		history: history,
		cfg:     cfg,
	}
}

// Run replays every channel in the history, up to the configured
// per-channel message cap, and returns aggregate stats
func (b *Backfill) Run(ctx context.Context) (Stats, error) {
	session := uuid.New().String()[:8]

	channels, err := b.history.Channels(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list channels: %w", err)
	}
	if len(channels) == 0 {
		return Stats{}, nil
	}

	fmt.Printf("Backfill %s: replaying %d channel(s), up to %d messages each\n",
		session, len(channels), b.cfg.MaxMessagesPerChannel)

	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChannels)

	for _, channelID := range channels {
		channelID := channelID
		g.Go(func() error {
			return b.replayChannel(gctx, channelID, &stats)
		})
	}
	if err := g.Wait(); err != nil {
		return stats.Snapshot(), err
	}

	final := stats.Snapshot()
	fmt.Printf("Backfill %s complete: %d processed (%d questions, %d answers), %d skipped, %d degraded\n",
		session, final.Processed, final.Questions, final.Answers, final.Skipped, final.Degraded)
	return final, nil
}

// replayChannel fetches, normalizes, orders, and processes one
// channel's history
func (b *Backfill) replayChannel(ctx context.Context, channelID string, stats *Stats) error {
	events, err := b.history.FetchMessages(ctx, channelID, b.cfg.MaxMessagesPerChannel)
	if err != nil {
		return fmt.Errorf("failed to fetch history for %s: %w", channelID, err)
	}

	messages := make([]types.Message, 0, len(events))
	for _, ev := range events {
		msg, err := normalize.Normalize(ev)
		if err != nil {
			if !errors.Is(err, normalize.ErrRejected) {
				fmt.Fprintf(os.Stderr, "Warning: dropping event %s: %v\n", ev.TS, err)
			}
			if ev.TS != "" && !errors.Is(err, normalize.ErrNoID) {
				if merr := b.engine.MarkRejected(ctx, ev.TS, ev.ChannelID); merr != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to mark rejected event %s: %v\n", ev.TS, merr)
				}
			}
			stats.reject()
			continue
		}
		messages = append(messages, msg)
	}

	// History can arrive out of order; replay chronologically so the
	// outcome matches what realtime processing would have produced.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	cc := engine.NewChannelContext(channelID, b.cfg)
	if err := b.engine.SeedWindow(ctx, cc); err != nil {
		return err
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := b.engine.Process(ctx, cc, msg)
		stats.record(res, err)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to process %s: %v\n", msg.ID, err)
		}
	}
	return nil
}
