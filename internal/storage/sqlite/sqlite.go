// Package sqlite implements the persistence gateway on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/qawatch/qawatch/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite.
// All idempotence guarantees ride on the schema's unique constraints;
// the Go code never takes application-level locks.
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL mode for concurrent readers alongside the writer
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to :memory: would get its own database, so
	// pin the pool to a single connection there.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// StoreQuestion inserts a question, returning the existing row's id
// without error when the source message was already stored
func (s *SQLiteStorage) StoreQuestion(ctx context.Context, q *types.Question) (int64, bool, error) {
	if err := q.Validate(); err != nil {
		return 0, false, fmt.Errorf("validation failed: %w", err)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (
			text, author_id, author_name, channel_id, timestamp,
			source_message_id, confidence_score, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_message_id) DO NOTHING
	`,
		q.Text, q.AuthorID, q.AuthorName, q.ChannelID, q.Timestamp,
		q.SourceMessageID, q.Confidence, q.Status, q.CreatedAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert question: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("failed to read inserted id: %w", err)
		}
		q.ID = id
		return id, true, nil
	}

	// Duplicate delivery: report the existing row
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM questions WHERE source_message_id = ?`, q.SourceMessageID,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up existing question: %w", err)
	}
	q.ID = id
	return id, false, nil
}

// StoreAnswer inserts an answer, transitions its question from open to
// answered, and derives the qa_pairs row, all in one transaction, so a
// crash can never leave a linked answer without its pair. When the
// answer row already exists the call is a no-op returning the existing
// id. When the question is no longer open (another writer linked it
// first), nothing is written and (0, false) is returned.
func (s *SQLiteStorage) StoreAnswer(ctx context.Context, a *types.Answer) (int64, bool, error) {
	if err := a.Validate(); err != nil {
		return 0, false, fmt.Errorf("validation failed: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	// BEGIN IMMEDIATE takes the write lock up front so the
	// open->answered check and the insert are serialized against other
	// writers. database/sql's BeginTx can't express transaction modes,
	// so raw statements run on a pinned connection (same approach the
	// sqlite3 driver forces on everyone).
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return 0, false, fmt.Errorf("failed to begin immediate transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	// Duplicate delivery short-circuit
	var existingID int64
	err = conn.QueryRowContext(ctx,
		`SELECT id FROM answers WHERE source_message_id = ?`, a.SourceMessageID,
	).Scan(&existingID)
	if err == nil {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		a.ID = existingID
		return existingID, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to look up existing answer: %w", err)
	}

	// Claim the question. Zero rows means it was answered or expired
	// since the caller selected it as a candidate.
	res, err := conn.ExecContext(ctx,
		`UPDATE questions SET status = ? WHERE id = ? AND status = ?`,
		types.QuestionAnswered, a.QuestionID, types.QuestionOpen,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to transition question %d: %w", a.QuestionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read transition result: %w", err)
	}
	if affected == 0 {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		committed = true
		return 0, false, nil
	}

	res, err = conn.ExecContext(ctx, `
		INSERT INTO answers (
			question_id, text, author_id, author_name, channel_id,
			timestamp, source_message_id, confidence_score, answer_quality, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.QuestionID, a.Text, a.AuthorID, a.AuthorName, a.ChannelID,
		a.Timestamp, a.SourceMessageID, a.Confidence, a.Quality, a.CreatedAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert answer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read inserted id: %w", err)
	}

	// Derive the denormalized pair in the same transaction. Pair
	// confidence is the weaker of the two verdicts that produced it.
	var qText, qAuthor string
	var qConf float64
	err = conn.QueryRowContext(ctx,
		`SELECT text, author_name, confidence_score FROM questions WHERE id = ?`, a.QuestionID,
	).Scan(&qText, &qAuthor, &qConf)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read question %d for pair: %w", a.QuestionID, err)
	}
	pairConf := qConf
	if a.Confidence < pairConf {
		pairConf = a.Confidence
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO qa_pairs (
			question, answer, question_user, answer_user, channel,
			timestamp, confidence_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question, answer, channel) DO NOTHING
	`,
		qText, a.Text, qAuthor, a.AuthorName, a.ChannelID,
		a.Timestamp, pairConf, a.CreatedAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert qa pair: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	a.ID = id
	return id, true, nil
}

// StoreQAPair inserts the denormalized pair, no-op on duplicate
// (question, answer, channel)
func (s *SQLiteStorage) StoreQAPair(ctx context.Context, p *types.QAPair) (int64, bool, error) {
	if err := p.Validate(); err != nil {
		return 0, false, fmt.Errorf("validation failed: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO qa_pairs (
			question, answer, question_user, answer_user, channel,
			timestamp, confidence_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question, answer, channel) DO NOTHING
	`,
		p.Question, p.Answer, p.QuestionAuthor, p.AnswerAuthor, p.ChannelID,
		p.Timestamp, p.Confidence, p.CreatedAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert qa pair: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("failed to read inserted id: %w", err)
		}
		p.ID = id
		return id, true, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM qa_pairs WHERE question = ? AND answer = ? AND channel = ?`,
		p.Question, p.Answer, p.ChannelID,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up existing pair: %w", err)
	}
	p.ID = id
	return id, false, nil
}

// FindOpenQuestions returns open questions for a channel no older than
// oldest, most recent first
func (s *SQLiteStorage) FindOpenQuestions(ctx context.Context, channelID string, oldest time.Time, limit int) ([]*types.Question, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, author_id, author_name, channel_id, timestamp,
		       source_message_id, confidence_score, status, created_at
		FROM questions
		WHERE channel_id = ? AND status = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, channelID, types.QuestionOpen, oldest, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open questions: %w", err)
	}
	defer rows.Close()

	var questions []*types.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ExpireQuestions transitions open questions older than cutoff to
// expired, returning how many changed
func (s *SQLiteStorage) ExpireQuestions(ctx context.Context, channelID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ? WHERE channel_id = ? AND status = ? AND timestamp < ?`,
		types.QuestionExpired, channelID, types.QuestionOpen, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire questions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read expire result: %w", err)
	}
	return int(affected), nil
}

// GetQuestion retrieves a question by id
func (s *SQLiteStorage) GetQuestion(ctx context.Context, id int64) (*types.Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, author_id, author_name, channel_id, timestamp,
		       source_message_id, confidence_score, status, created_at
		FROM questions
		WHERE id = ?
	`, id)

	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// MarkProcessed records the idempotence marker for a source message
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, sourceMessageID, channelID string) error {
	if sourceMessageID == "" {
		return fmt.Errorf("source_message_id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (source_message_id, channel_id)
		VALUES (?, ?)
		ON CONFLICT(source_message_id) DO NOTHING
	`, sourceMessageID, channelID)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// IsProcessed reports whether a source message was already decided
func (s *SQLiteStorage) IsProcessed(ctx context.Context, sourceMessageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_messages WHERE source_message_id = ?`, sourceMessageID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return true, nil
}

// ListQAPairs enumerates stored pairs, newest first
func (s *SQLiteStorage) ListQAPairs(ctx context.Context, filter types.PairFilter) ([]*types.QAPair, error) {
	whereClauses := []string{}
	args := []interface{}{}

	if filter.ChannelID != "" {
		whereClauses = append(whereClauses, "channel = ?")
		args = append(args, filter.ChannelID)
	}
	if !filter.Since.IsZero() {
		whereClauses = append(whereClauses, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		whereClauses = append(whereClauses, "timestamp < ?")
		args = append(args, filter.Until)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, question, answer, question_user, answer_user, channel,
		       timestamp, confidence_score, created_at
		FROM qa_pairs
		%s
		ORDER BY created_at DESC
		LIMIT ?
	`, whereSQL), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*types.QAPair
	for rows.Next() {
		var p types.QAPair
		if err := rows.Scan(
			&p.ID, &p.Question, &p.Answer, &p.QuestionAuthor, &p.AnswerAuthor,
			&p.ChannelID, &p.Timestamp, &p.Confidence, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan qa pair: %w", err)
		}
		pairs = append(pairs, &p)
	}
	return pairs, rows.Err()
}

// GetStatistics summarizes stored state
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	counts := []struct {
		query  string
		target *int
	}{
		{`SELECT COUNT(*) FROM questions`, &stats.Questions},
		{`SELECT COUNT(*) FROM questions WHERE status = 'open'`, &stats.OpenQuestions},
		{`SELECT COUNT(*) FROM questions WHERE status = 'answered'`, &stats.AnsweredQuestions},
		{`SELECT COUNT(*) FROM questions WHERE status = 'expired'`, &stats.ExpiredQuestions},
		{`SELECT COUNT(*) FROM answers`, &stats.Answers},
		{`SELECT COUNT(*) FROM qa_pairs`, &stats.Pairs},
		{`SELECT COUNT(*) FROM processed_messages`, &stats.ProcessedMessages},
		{`SELECT COUNT(DISTINCT channel_id) FROM questions`, &stats.Channels},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.target); err != nil {
			return nil, fmt.Errorf("failed to gather statistics: %w", err)
		}
	}
	return stats, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row scanner) (*types.Question, error) {
	var q types.Question
	err := row.Scan(
		&q.ID, &q.Text, &q.AuthorID, &q.AuthorName, &q.ChannelID,
		&q.Timestamp, &q.SourceMessageID, &q.Confidence, &q.Status, &q.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	return &q, nil
}
