package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qawatch/qawatch/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testQuestion(sourceID string, ts time.Time) *types.Question {
	return &types.Question{
		Text:            "How do I rotate the API key?",
		AuthorID:        "U100",
		AuthorName:      "dana",
		ChannelID:       "C1",
		Timestamp:       ts,
		SourceMessageID: sourceID,
		Confidence:      0.9,
		Status:          types.QuestionOpen,
	}
}

func testAnswer(questionID int64, sourceID string, ts time.Time) *types.Answer {
	return &types.Answer{
		QuestionID:      questionID,
		Text:            "Use the settings page, under integrations.",
		AuthorID:        "U200",
		AuthorName:      "sam",
		ChannelID:       "C1",
		Timestamp:       ts,
		SourceMessageID: sourceID,
		Confidence:      0.8,
		Quality:         types.QualityDirect,
	}
}

func TestStoreQuestionIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	q := testQuestion("1000.0001", ts)
	id, inserted, err := store.StoreQuestion(ctx, q)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, id)

	// Redelivery of the same source message collapses into the first row
	dup := testQuestion("1000.0001", ts)
	dup.Confidence = 0.75
	id2, inserted2, err := store.StoreQuestion(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted2)
	assert.Equal(t, id, id2)

	got, err := store.GetQuestion(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.QuestionOpen, got.Status)
	assert.InDelta(t, 0.9, got.Confidence, 0.001)
}

func TestStoreAnswerTransitionsQuestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	qid, _, err := store.StoreQuestion(ctx, testQuestion("1000.0001", ts))
	require.NoError(t, err)

	aid, inserted, err := store.StoreAnswer(ctx, testAnswer(qid, "1000.0002", ts.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, aid)

	q, err := store.GetQuestion(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, types.QuestionAnswered, q.Status)

	// The pair lands in the same transaction as the answer, carrying
	// the weaker of the two confidences.
	pairs, err := store.ListQAPairs(ctx, types.PairFilter{})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "How do I rotate the API key?", pairs[0].Question)
	assert.Equal(t, "Use the settings page, under integrations.", pairs[0].Answer)
	assert.Equal(t, "dana", pairs[0].QuestionAuthor)
	assert.Equal(t, "sam", pairs[0].AnswerAuthor)
	assert.InDelta(t, 0.8, pairs[0].Confidence, 0.001)
}

func TestStoreAnswerDuplicateDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	qid, _, err := store.StoreQuestion(ctx, testQuestion("1000.0001", ts))
	require.NoError(t, err)

	a := testAnswer(qid, "1000.0002", ts.Add(time.Minute))
	aid, inserted, err := store.StoreAnswer(ctx, a)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := testAnswer(qid, "1000.0002", ts.Add(time.Minute))
	aid2, inserted2, err := store.StoreAnswer(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted2)
	assert.Equal(t, aid, aid2)

	pairs, err := store.ListQAPairs(ctx, types.PairFilter{})
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}

func TestStoreAnswerLosesClosedQuestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	qid, _, err := store.StoreQuestion(ctx, testQuestion("1000.0001", ts))
	require.NoError(t, err)

	_, inserted, err := store.StoreAnswer(ctx, testAnswer(qid, "1000.0002", ts.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, inserted)

	// A different message targeting the same, now closed, question
	// writes nothing.
	id, inserted, err := store.StoreAnswer(ctx, testAnswer(qid, "1000.0003", ts.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, id)
}

func TestStoreQAPairIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	pair := &types.QAPair{
		Question:       "How do I rotate the API key?",
		Answer:         "Use the settings page.",
		QuestionAuthor: "dana",
		AnswerAuthor:   "sam",
		ChannelID:      "C1",
		Timestamp:      ts,
		Confidence:     0.8,
	}
	id, inserted, err := store.StoreQAPair(ctx, pair)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *pair
	dup.ID = 0
	id2, inserted2, err := store.StoreQAPair(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted2)
	assert.Equal(t, id, id2)
}

func TestFindOpenQuestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	old := testQuestion("1000.0001", base.Add(-48*time.Hour))
	mid := testQuestion("1000.0002", base.Add(-2*time.Hour))
	recent := testQuestion("1000.0003", base.Add(-time.Minute))
	other := testQuestion("1000.0004", base)
	other.ChannelID = "C2"

	for _, q := range []*types.Question{old, mid, recent, other} {
		_, _, err := store.StoreQuestion(ctx, q)
		require.NoError(t, err)
	}

	got, err := store.FindOpenQuestions(ctx, "C1", base.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most recent first, old one outside the horizon excluded
	assert.Equal(t, recent.SourceMessageID, got[0].SourceMessageID)
	assert.Equal(t, mid.SourceMessageID, got[1].SourceMessageID)
}

func TestExpireQuestions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	stale := testQuestion("1000.0001", base.Add(-48*time.Hour))
	fresh := testQuestion("1000.0002", base.Add(-time.Hour))
	for _, q := range []*types.Question{stale, fresh} {
		_, _, err := store.StoreQuestion(ctx, q)
		require.NoError(t, err)
	}

	n, err := store.ExpireQuestions(ctx, "C1", base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Already expired rows are untouched on the next pass
	n, err = store.ExpireQuestions(ctx, "C1", base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	staleRow, err := store.GetQuestion(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.QuestionExpired, staleRow.Status)
	freshRow, err := store.GetQuestion(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.QuestionOpen, freshRow.Status)
}

func TestProcessedMarkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done, err := store.IsProcessed(ctx, "1000.0001")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkProcessed(ctx, "1000.0001", "C1"))
	// Repeat is a no-op
	require.NoError(t, store.MarkProcessed(ctx, "1000.0001", "C1"))

	done, err = store.IsProcessed(ctx, "1000.0001")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestListQAPairsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	pairs := []*types.QAPair{
		{Question: "q1", Answer: "a1", ChannelID: "C1", Timestamp: base.Add(-2 * time.Hour), Confidence: 0.7},
		{Question: "q2", Answer: "a2", ChannelID: "C1", Timestamp: base.Add(-time.Hour), Confidence: 0.8},
		{Question: "q3", Answer: "a3", ChannelID: "C2", Timestamp: base, Confidence: 0.9},
	}
	for _, p := range pairs {
		_, _, err := store.StoreQAPair(ctx, p)
		require.NoError(t, err)
	}

	t.Run("by channel", func(t *testing.T) {
		got, err := store.ListQAPairs(ctx, types.PairFilter{ChannelID: "C1"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by time range", func(t *testing.T) {
		got, err := store.ListQAPairs(ctx, types.PairFilter{
			Since: base.Add(-90 * time.Minute),
			Until: base.Add(-time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "q2", got[0].Question)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := store.ListQAPairs(ctx, types.PairFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestGetStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	qid, _, err := store.StoreQuestion(ctx, testQuestion("1000.0001", base))
	require.NoError(t, err)
	_, _, err = store.StoreQuestion(ctx, testQuestion("1000.0002", base.Add(time.Minute)))
	require.NoError(t, err)

	_, _, err = store.StoreAnswer(ctx, testAnswer(qid, "1000.0003", base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(ctx, "1000.0003", "C1"))

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Questions)
	assert.Equal(t, 1, stats.OpenQuestions)
	assert.Equal(t, 1, stats.AnsweredQuestions)
	assert.Equal(t, 1, stats.Answers)
	assert.Equal(t, 1, stats.Pairs)
	assert.Equal(t, 1, stats.ProcessedMessages)
	assert.Equal(t, 1, stats.Channels)
}

func TestValidationRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.StoreQuestion(ctx, &types.Question{Text: "", ChannelID: "C1"})
	assert.Error(t, err)

	_, _, err = store.StoreAnswer(ctx, &types.Answer{Text: "a"})
	assert.Error(t, err)

	assert.Error(t, store.MarkProcessed(ctx, "", "C1"))
}
