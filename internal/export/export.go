// Package export renders stored question/answer pairs as CSV or JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/qawatch/qawatch/internal/storage"
	"github.com/qawatch/qawatch/internal/types"
)

// Format selects the output encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// IsValid checks if the format value is valid
func (f Format) IsValid() bool {
	return f == FormatCSV || f == FormatJSON
}

// Options controls what gets exported
type Options struct {
	Format    Format
	ChannelID string    // Only pairs from this channel ("" = all)
	Since     time.Time // Only pairs at or after this time
	Until     time.Time // Only pairs before this time
	Limit     int       // Maximum rows (0 = default)
}

// Write fetches pairs matching opts and encodes them to w. Returns the
// number of pairs written.
func Write(ctx context.Context, store storage.Storage, w io.Writer, opts Options) (int, error) {
	if !opts.Format.IsValid() {
		return 0, fmt.Errorf("unknown export format: %s", opts.Format)
	}

	pairs, err := store.ListQAPairs(ctx, types.PairFilter{
		ChannelID: opts.ChannelID,
		Since:     opts.Since,
		Until:     opts.Until,
		Limit:     opts.Limit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pairs: %w", err)
	}

	switch opts.Format {
	case FormatJSON:
		err = writeJSON(w, pairs)
	default:
		err = writeCSV(w, pairs)
	}
	if err != nil {
		return 0, err
	}
	return len(pairs), nil
}

func writeCSV(w io.Writer, pairs []*types.QAPair) error {
	cw := csv.NewWriter(w)
	header := []string{"question", "answer", "question_user", "answer_user", "channel", "timestamp", "confidence_score"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, p := range pairs {
		record := []string{
			p.Question,
			p.Answer,
			p.QuestionAuthor,
			p.AnswerAuthor,
			p.ChannelID,
			p.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Confidence, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, pairs []*types.QAPair) error {
	if pairs == nil {
		pairs = []*types.QAPair{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pairs); err != nil {
		return fmt.Errorf("failed to encode pairs: %w", err)
	}
	return nil
}
