// Package monitor contains the two pipeline drivers: the realtime
// monitor that follows a live event feed, and the backfill runner that
// replays channel history. Both feed the same linking engine, so a
// message produces the same decision regardless of which driver
// delivered it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/qawatch/qawatch/internal/config"
	"github.com/qawatch/qawatch/internal/engine"
	"github.com/qawatch/qawatch/internal/normalize"
	"github.com/qawatch/qawatch/internal/slackfeed"
	"github.com/qawatch/qawatch/internal/types"
)

// shutdownGrace bounds how long an in-flight message may keep writing
// after the run context is canceled
const shutdownGrace = 30 * time.Second

// Stats counts pipeline outcomes across all channels
type Stats struct {
	mu sync.Mutex

	Processed int // Messages that reached a terminal decision
	Questions int // New open questions recorded
	Answers   int // Answers linked to questions
	Ignored   int // Neither question nor answer
	Skipped   int // Already-processed markers hit
	Rejected  int // Events dropped by normalization
	Degraded  int // Classifier failures (message left retryable)
	Errors    int // Processing errors
}

func (s *Stats) record(res engine.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.Errors++
		return
	}
	if res.AlreadyProcessed {
		s.Skipped++
		return
	}
	if res.Degraded && res.Decision == types.DecisionIgnored {
		s.Degraded++
		return
	}
	s.Processed++
	switch res.Decision {
	case types.DecisionQuestion:
		s.Questions++
	case types.DecisionAnswer:
		s.Answers++
	default:
		s.Ignored++
	}
}

func (s *Stats) reject() {
	s.mu.Lock()
	s.Rejected++
	s.mu.Unlock()
}

// Snapshot returns a copy safe to read after workers stop
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Processed: s.Processed,
		Questions: s.Questions,
		Answers:   s.Answers,
		Ignored:   s.Ignored,
		Skipped:   s.Skipped,
		Rejected:  s.Rejected,
		Degraded:  s.Degraded,
		Errors:    s.Errors,
	}
}

// Monitor follows a live event feed and routes every event to a
// per-channel worker. Workers are created lazily on the first event
// for a channel and process strictly sequentially, so decisions within
// a channel are deterministic regardless of cross-channel interleaving.
type Monitor struct {
	engine *engine.Engine
	source slackfeed.Source
	cfg    config.Config

	mu      sync.Mutex
	workers map[string]*channelWorker
	wg      sync.WaitGroup

	stats Stats
}

type channelWorker struct {
	ch chan slackfeed.Event
	cc *engine.ChannelContext
}

// New creates a realtime monitor
func New(eng *engine.Engine, source slackfeed.Source, cfg config.Config) *Monitor {
	return &Monitor{
		engine:  eng,
		source:  source,
		cfg:     cfg,
		workers: make(map[string]*channelWorker),
	}
}

// Run consumes the event feed until it closes or ctx is canceled, then
// drains every worker's buffered events and returns final stats.
// In-flight messages finish under a bounded grace context so a shutdown
// never leaves a half-recorded decision.
func (m *Monitor) Run(ctx context.Context) (Stats, error) {
	events, err := m.source.Events(ctx)
	if err != nil {
		return m.stats.Snapshot(), fmt.Errorf("failed to open event feed: %w", err)
	}

	fmt.Printf("Monitoring event feed (question threshold %.2f, answer threshold %.2f)\n",
		m.cfg.QuestionThreshold, m.cfg.AnswerThreshold)

	for ev := range events {
		if ev.ChannelID == "" {
			m.stats.reject()
			continue
		}
		worker, err := m.workerFor(ctx, ev.ChannelID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start worker for %s: %v\n", ev.ChannelID, err)
			m.stats.reject()
			continue
		}
		select {
		case worker.ch <- ev:
		case <-ctx.Done():
			// Feed is about to close; remaining events are dropped and
			// stay retryable since no marker was written for them.
		}
	}

	m.mu.Lock()
	for _, w := range m.workers {
		close(w.ch)
	}
	m.mu.Unlock()
	m.wg.Wait()

	return m.stats.Snapshot(), nil
}

// workerFor returns the channel's worker, creating and seeding it on
// first use
func (m *Monitor) workerFor(ctx context.Context, channelID string) (*channelWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[channelID]; ok {
		return w, nil
	}

	cc := engine.NewChannelContext(channelID, m.cfg)
	if err := m.engine.SeedWindow(ctx, cc); err != nil {
		return nil, err
	}

	w := &channelWorker{
		ch: make(chan slackfeed.Event, m.cfg.BufferSize),
		cc: cc,
	}
	m.workers[channelID] = w

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runWorker(ctx, w)
	}()
	return w, nil
}

// runWorker processes one channel's events in delivery order
func (m *Monitor) runWorker(ctx context.Context, w *channelWorker) {
	for ev := range w.ch {
		m.handle(ctx, w, ev)
	}
}

// handle settles, normalizes, and processes a single event
func (m *Monitor) handle(ctx context.Context, w *channelWorker, ev slackfeed.Event) {
	// Let quick edits land before classifying; skipped when draining
	// after cancellation.
	if delay := m.cfg.ProcessDelay(); delay > 0 && ctx.Err() == nil {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	procCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
	}

	msg, err := normalize.Normalize(ev)
	if err != nil {
		if !errors.Is(err, normalize.ErrRejected) {
			fmt.Fprintf(os.Stderr, "Warning: dropping event %s: %v\n", ev.TS, err)
		}
		// Rejections with a stable id still get an Ignored marker so
		// redelivery does not rework them.
		if ev.TS != "" && !errors.Is(err, normalize.ErrNoID) {
			if merr := m.engine.MarkRejected(procCtx, ev.TS, ev.ChannelID); merr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to mark rejected event %s: %v\n", ev.TS, merr)
			}
		}
		m.stats.reject()
		return
	}

	res, err := m.engine.Process(procCtx, w.cc, msg)
	m.stats.record(res, err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to process %s: %v\n", msg.ID, err)
		return
	}
	m.report(w.cc.ChannelID, msg, res)
}

func (m *Monitor) report(channelID string, msg types.Message, res engine.Result) {
	switch {
	case res.AlreadyProcessed:
		// Quiet; redeliveries are routine.
	case res.Decision == types.DecisionQuestion:
		fmt.Printf("[%s] question (%.2f): %s\n", channelID, res.Question.Confidence, truncate(msg.Text, 80))
	case res.Decision == types.DecisionAnswer:
		fmt.Printf("[%s] answer (%.2f, %s) -> question %d: %s\n",
			channelID, res.Answer.Confidence, res.Answer.Quality, res.Answer.QuestionID, truncate(msg.Text, 80))
	case res.Degraded:
		fmt.Printf("[%s] degraded, left retryable: %s\n", channelID, truncate(msg.Text, 80))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
