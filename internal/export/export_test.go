package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qawatch/qawatch/internal/storage/sqlite"
	"github.com/qawatch/qawatch/internal/types"
)

func seedPairs(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	pairs := []*types.QAPair{
		{
			Question: "How do I deploy?", Answer: "Run make deploy",
			QuestionAuthor: "dana", AnswerAuthor: "sam",
			ChannelID: "C1", Timestamp: base, Confidence: 0.85, CreatedAt: base,
		},
		{
			Question: "Where are the logs?", Answer: "In /var/log/app",
			QuestionAuthor: "sam", AnswerAuthor: "dana",
			ChannelID: "C2", Timestamp: base.Add(time.Hour), Confidence: 0.7, CreatedAt: base.Add(time.Hour),
		},
	}
	for _, p := range pairs {
		_, _, err := store.StoreQAPair(context.Background(), p)
		require.NoError(t, err)
	}
	return store
}

func TestWriteCSV(t *testing.T) {
	store := seedPairs(t)
	var buf bytes.Buffer

	n, err := Write(context.Background(), store, &buf, Options{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 rows
	assert.Equal(t, []string{"question", "answer", "question_user", "answer_user", "channel", "timestamp", "confidence_score"}, records[0])

	// Newest first
	assert.Equal(t, "Where are the logs?", records[1][0])
	assert.Equal(t, "0.70", records[1][6])
}

func TestWriteJSON(t *testing.T) {
	store := seedPairs(t)
	var buf bytes.Buffer

	n, err := Write(context.Background(), store, &buf, Options{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var pairs []types.QAPair
	require.NoError(t, json.Unmarshal(buf.Bytes(), &pairs))
	require.Len(t, pairs, 2)
	assert.Equal(t, "C1", pairs[1].ChannelID)
}

func TestWriteChannelFilter(t *testing.T) {
	store := seedPairs(t)
	var buf bytes.Buffer

	n, err := Write(context.Background(), store, &buf, Options{Format: FormatJSON, ChannelID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteEmptyStore(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var buf bytes.Buffer
	n, err := Write(context.Background(), store, &buf, Options{Format: FormatJSON})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteUnknownFormat(t *testing.T) {
	store := seedPairs(t)
	var buf bytes.Buffer
	_, err := Write(context.Background(), store, &buf, Options{Format: "xml"})
	assert.Error(t, err)
}
