// Package engine implements the question/answer linking pipeline: each
// normalized message is classified, matched against the channel's open
// questions, and its outcome persisted exactly once.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/qawatch/qawatch/internal/classifier"
	"github.com/qawatch/qawatch/internal/config"
	"github.com/qawatch/qawatch/internal/storage"
	"github.com/qawatch/qawatch/internal/types"
	"github.com/qawatch/qawatch/internal/window"
)

// ChannelContext carries the per-channel matching state: the open
// question window and a small ring of recent messages used as
// conversational context for answer classification.
//
// A ChannelContext is owned by one worker; Process calls for the same
// channel must be sequential.
type ChannelContext struct {
	ChannelID string
	Window    *window.Window

	recent    []types.Message
	recentCap int
}

// NewChannelContext creates matching state for one channel
func NewChannelContext(channelID string, cfg config.Config) *ChannelContext {
	recentCap := cfg.ContextMessages
	if recentCap < 1 {
		recentCap = 1
	}
	return &ChannelContext{
		ChannelID: channelID,
		Window:    window.New(cfg.BufferSize),
		recentCap: recentCap,
	}
}

// Observe records a message in the recent-context ring. Every message
// is observed regardless of its decision, so context reflects the real
// conversation.
func (cc *ChannelContext) Observe(msg types.Message) {
	cc.recent = append(cc.recent, msg)
	if len(cc.recent) > cc.recentCap {
		cc.recent = cc.recent[len(cc.recent)-cc.recentCap:]
	}
}

// ContextText renders the recent ring as transcript lines for the
// classifier. Returns "" when nothing has been observed yet.
func (cc *ChannelContext) ContextText() string {
	if len(cc.recent) == 0 {
		return ""
	}
	lines := make([]string, 0, len(cc.recent))
	for _, m := range cc.recent {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", types.FormatTimestamp(m.Timestamp), m.AuthorName, m.Text))
	}
	return strings.Join(lines, "\n")
}

// Result is the terminal outcome of processing one message
type Result struct {
	Decision types.Decision

	// Question is set when Decision is DecisionQuestion
	Question *types.Question

	// Answer and AnsweredQuestion are set when Decision is DecisionAnswer
	Answer           *types.Answer
	AnsweredQuestion *types.Question

	// Expired counts questions aged out before this message was matched
	Expired int

	// AlreadyProcessed is true when the idempotence marker short-circuited
	// the message before any classification
	AlreadyProcessed bool

	// Degraded is true when the classifier backend failed for this
	// message. A degraded non-decision is not marked processed, so a
	// later redelivery can retry it.
	Degraded bool
}

// Engine links questions to answers for any number of channels. The
// engine itself is stateless between calls; all per-channel state lives
// in the ChannelContext the caller passes in.
type Engine struct {
	classifier classifier.Classifier
	store      storage.Storage
	cfg        config.Config
	now        func() time.Time
}

// New creates a linking engine
func New(cls classifier.Classifier, store storage.Storage, cfg config.Config) *Engine {
	return &Engine{
		classifier: cls,
		store:      store,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock overrides the engine's time source, for tests
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Process runs one message through the full pipeline:
//
//  1. Skip if the message was already decided (idempotence marker).
//  2. Expire open questions past the answer-timeout horizon.
//  3. Classify as question; above threshold it becomes a new open question.
//  4. Otherwise score it against open questions, most recent first; the
//     first candidate above the answer threshold wins and the question
//     closes.
//  5. Record the terminal decision marker, except after a degraded
//     non-decision where nothing was persisted.
//
// The marker is written only after every dependent write succeeded, so
// a crash between writes leaves the message retryable rather than
// half-recorded and skipped.
func (e *Engine) Process(ctx context.Context, cc *ChannelContext, msg types.Message) (Result, error) {
	if err := msg.Validate(); err != nil {
		return Result{Decision: types.DecisionIgnored}, fmt.Errorf("invalid message: %w", err)
	}
	if msg.ChannelID != cc.ChannelID {
		return Result{Decision: types.DecisionIgnored}, fmt.Errorf("message channel %s does not match context channel %s", msg.ChannelID, cc.ChannelID)
	}

	done, err := e.store.IsProcessed(ctx, msg.ID)
	if err != nil {
		return Result{Decision: types.DecisionIgnored}, fmt.Errorf("failed to check processed marker: %w", err)
	}
	if done {
		cc.Observe(msg)
		return Result{Decision: types.DecisionIgnored, AlreadyProcessed: true}, nil
	}

	expired, err := e.expire(ctx, cc, msg.Timestamp)
	if err != nil {
		return Result{Decision: types.DecisionIgnored}, err
	}

	result, err := e.decide(ctx, cc, msg)
	result.Expired = expired
	cc.Observe(msg)
	if err != nil {
		return result, err
	}

	// A degraded non-decision persisted nothing; leaving the marker
	// unwritten keeps the message retryable on redelivery.
	if result.Degraded && result.Decision == types.DecisionIgnored {
		return result, nil
	}

	if err := e.store.MarkProcessed(ctx, msg.ID, msg.ChannelID); err != nil {
		return result, fmt.Errorf("failed to mark message processed: %w", err)
	}
	return result, nil
}

// MarkRejected records an Ignored marker for an event that was dropped
// before classification but still carries a stable id, so redelivery
// does not rework it. Events without a stable id are simply discarded
// by the caller; there is nothing to deduplicate against.
func (e *Engine) MarkRejected(ctx context.Context, sourceMessageID, channelID string) error {
	return e.store.MarkProcessed(ctx, sourceMessageID, channelID)
}

// SeedWindow loads the channel's persisted open questions into the
// matching window. Called once when a channel's context is created, so
// questions opened before a restart stay eligible for matching.
func (e *Engine) SeedWindow(ctx context.Context, cc *ChannelContext) error {
	oldest := e.now().Add(-e.cfg.AnswerTimeout())
	questions, err := e.store.FindOpenQuestions(ctx, cc.ChannelID, oldest, e.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to load open questions for %s: %w", cc.ChannelID, err)
	}
	for _, q := range questions {
		cc.Window.Insert(*q)
	}
	return nil
}

// expire ages out open questions in both the in-memory window and the
// store, keeping the two views consistent before any match attempt.
//
// The horizon is measured from the incoming message's timestamp, not
// the wall clock, so replaying old history reproduces the decisions
// realtime processing would have made at the time.
func (e *Engine) expire(ctx context.Context, cc *ChannelContext, ref time.Time) (int, error) {
	horizon := e.cfg.AnswerTimeout()

	cc.Window.Expire(ref, horizon)

	n, err := e.store.ExpireQuestions(ctx, cc.ChannelID, ref.Add(-horizon))
	if err != nil {
		return 0, fmt.Errorf("failed to expire questions: %w", err)
	}
	return n, nil
}

func (e *Engine) decide(ctx context.Context, cc *ChannelContext, msg types.Message) (Result, error) {
	qVerdict, err := e.classifier.ClassifyQuestion(ctx, msg.Text)
	if err != nil {
		// Backend down: treat as non-matching, skip answer scoring too
		// since it would hit the same backend once per candidate.
		fmt.Fprintf(os.Stderr, "Warning: question classification degraded for %s: %v\n", msg.ID, err)
		return Result{Decision: types.DecisionIgnored, Degraded: true}, nil
	}

	if qVerdict.IsQuestion && qVerdict.Confidence >= e.cfg.QuestionThreshold {
		return e.recordQuestion(ctx, cc, msg, qVerdict)
	}

	return e.matchAnswer(ctx, cc, msg)
}

// recordQuestion persists the message as a new open question and adds
// it to the matching window
func (e *Engine) recordQuestion(ctx context.Context, cc *ChannelContext, msg types.Message, verdict classifier.QuestionVerdict) (Result, error) {
	q := &types.Question{
		Text:            msg.Text,
		AuthorID:        msg.AuthorID,
		AuthorName:      msg.AuthorName,
		ChannelID:       msg.ChannelID,
		Timestamp:       msg.Timestamp,
		SourceMessageID: msg.ID,
		Confidence:      verdict.Confidence,
		Status:          types.QuestionOpen,
	}

	_, inserted, err := e.store.StoreQuestion(ctx, q)
	if err != nil {
		return Result{Decision: types.DecisionIgnored}, fmt.Errorf("failed to store question: %w", err)
	}
	if inserted {
		cc.Window.Insert(*q)
	}
	return Result{Decision: types.DecisionQuestion, Question: q}, nil
}

// matchAnswer scores the message against open questions, most recent
// first. The first candidate above the answer threshold wins; at most
// one question is answered per message.
func (e *Engine) matchAnswer(ctx context.Context, cc *ChannelContext, msg types.Message) (Result, error) {
	candidates := cc.Window.MostRecentCandidates(msg.Timestamp, e.cfg.ContextWindow)
	if len(candidates) == 0 {
		return Result{Decision: types.DecisionIgnored}, nil
	}

	contextText := cc.ContextText()
	degraded := false

	for i := range candidates {
		cand := &candidates[i]
		if cand.SourceMessageID == msg.ID {
			continue
		}

		verdict, err := e.classifier.ClassifyAnswer(ctx, cand.Text, msg.Text, contextText)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: answer classification degraded for %s against question %d: %v\n", msg.ID, cand.ID, err)
			degraded = true
			continue
		}
		if !verdict.IsAnswer || verdict.Confidence < e.cfg.AnswerThreshold {
			continue
		}

		a := &types.Answer{
			QuestionID:      cand.ID,
			Text:            msg.Text,
			AuthorID:        msg.AuthorID,
			AuthorName:      msg.AuthorName,
			ChannelID:       msg.ChannelID,
			Timestamp:       msg.Timestamp,
			SourceMessageID: msg.ID,
			Confidence:      verdict.Confidence,
			Quality:         verdict.Quality,
		}

		id, inserted, err := e.store.StoreAnswer(ctx, a)
		if err != nil {
			return Result{Decision: types.DecisionIgnored, Degraded: degraded}, fmt.Errorf("failed to store answer: %w", err)
		}
		if !inserted && id == 0 {
			// Lost the question to another writer between candidate
			// selection and the store transition. Drop it locally and
			// keep scanning older candidates.
			cc.Window.MarkAnswered(cand.ID)
			continue
		}
		cc.Window.MarkAnswered(cand.ID)

		answered := *cand
		answered.Status = types.QuestionAnswered
		return Result{
			Decision:         types.DecisionAnswer,
			Answer:           a,
			AnsweredQuestion: &answered,
			Degraded:         degraded,
		}, nil
	}

	return Result{Decision: types.DecisionIgnored, Degraded: degraded}, nil
}
