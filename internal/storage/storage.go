// Package storage defines the idempotent persistence gateway for
// questions, answers, and question/answer pairs.
package storage

import (
	"context"
	"time"

	"github.com/qawatch/qawatch/internal/storage/sqlite"
	"github.com/qawatch/qawatch/internal/types"
)

// Storage is the persistence boundary for the linking engine and
// drivers.
//
// Every Store* operation is idempotent: when the record's uniqueness
// key (source_message_id, or (question, answer, channel) for pairs) is
// already satisfied, it returns the existing row's id with
// inserted=false instead of failing. Callers branch on returned
// metadata, never on conflict errors. Mutual exclusion across
// concurrent writers comes from the store's unique constraints, not
// application locks.
type Storage interface {
	// StoreQuestion inserts a question, no-op on duplicate source message
	StoreQuestion(ctx context.Context, q *types.Question) (id int64, inserted bool, err error)

	// StoreAnswer inserts an answer, transitions its question from open
	// to answered, and derives the denormalized qa pair, all in the same
	// transaction, so no crash can leave a linked answer without its
	// pair. Only the write that actually performs the open->answered
	// transition reports inserted=true, so at most one answer wins a
	// question even across processes.
	StoreAnswer(ctx context.Context, a *types.Answer) (id int64, inserted bool, err error)

	// StoreQAPair inserts a denormalized pair directly, no-op when
	// (question, answer, channel) already exists. Linked answers get
	// their pair from StoreAnswer; this is for seeding and imports.
	StoreQAPair(ctx context.Context, p *types.QAPair) (id int64, inserted bool, err error)

	// FindOpenQuestions returns open questions for a channel no older
	// than oldest, most recent first, bounded by limit. Mirrors the
	// in-memory window's expiry horizon so persisted and in-memory views
	// agree.
	FindOpenQuestions(ctx context.Context, channelID string, oldest time.Time, limit int) ([]*types.Question, error)

	// ExpireQuestions transitions open questions older than cutoff to
	// expired, returning how many changed
	ExpireQuestions(ctx context.Context, channelID string, cutoff time.Time) (int, error)

	// GetQuestion retrieves a question by id (nil when absent)
	GetQuestion(ctx context.Context, id int64) (*types.Question, error)

	// MarkProcessed records the idempotence marker for a source message.
	// Safe to repeat.
	MarkProcessed(ctx context.Context, sourceMessageID, channelID string) error

	// IsProcessed reports whether a source message already reached a
	// terminal decision
	IsProcessed(ctx context.Context, sourceMessageID string) (bool, error)

	// ListQAPairs enumerates stored pairs for export, newest first
	ListQAPairs(ctx context.Context, filter types.PairFilter) ([]*types.QAPair, error)

	// GetStatistics summarizes stored state
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Close releases the underlying store
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: "qawatch.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = "qawatch.db"
	}
	return sqlite.New(cfg.Path)
}
