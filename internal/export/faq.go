package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/qawatch/qawatch/internal/storage"
	"github.com/qawatch/qawatch/internal/types"
)

// FAQOptions controls markdown FAQ generation
type FAQOptions struct {
	ChannelID       string    // Only pairs from this channel ("" = all)
	Since           time.Time // Only pairs at or after this time
	Until           time.Time // Only pairs before this time
	Limit           int       // Maximum pairs considered (0 = default)
	MinAnswerLength int       // Skip answers shorter than this after cleanup (0 = default)
	Now             func() time.Time
}

const defaultMinAnswerLength = 10

// faqCategory buckets a pair under the first category whose keyword
// appears in the question; unmatched questions land in General.
type faqCategory struct {
	name     string
	keywords []string
}

var faqCategories = []faqCategory{
	{"API & Authentication", []string{"api", "endpoint", "token", "request", "call"}},
	{"Pricing & Credits", []string{"credit", "pricing", "cost", "payment", "subscription"}},
	{"Data & Filtering", []string{"filter", "search", "query", "data"}},
	{"Limits & Troubleshooting", []string{"limit", "rate", "usage", "error"}},
}

const faqGeneralCategory = "General"

var (
	mentionRe    = regexp.MustCompile(`<@U[A-Z0-9]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// WriteFAQ fetches pairs matching opts and renders them as a grouped
// markdown FAQ document. Returns the number of pairs included.
func WriteFAQ(ctx context.Context, store storage.Storage, w io.Writer, opts FAQOptions) (int, error) {
	pairs, err := store.ListQAPairs(ctx, types.PairFilter{
		ChannelID: opts.ChannelID,
		Since:     opts.Since,
		Until:     opts.Until,
		Limit:     opts.Limit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pairs: %w", err)
	}

	minAnswer := opts.MinAnswerLength
	if minAnswer <= 0 {
		minAnswer = defaultMinAnswerLength
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	sections := make(map[string][]*types.QAPair)
	total := 0
	for _, p := range pairs {
		question := cleanMarkdownText(p.Question)
		answer := cleanMarkdownText(p.Answer)
		if question == "" || len(answer) < minAnswer {
			continue
		}
		cleaned := *p
		cleaned.Question = question
		cleaned.Answer = answer
		cat := categorizeQuestion(question)
		sections[cat] = append(sections[cat], &cleaned)
		total++
	}

	// Short questions read best first within a section
	names := make([]string, 0, len(sections))
	for name, ps := range sections {
		names = append(names, name)
		sort.SliceStable(ps, func(i, j int) bool {
			return len(ps[i].Question) < len(ps[j].Question)
		})
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Frequently Asked Questions (FAQ)\n\n")
	fmt.Fprintf(&b, "*Generated on %s*\n\n", now().UTC().Format("January 2, 2006"))
	fmt.Fprintf(&b, "This FAQ contains %d question(s) answered in the monitored channels.\n\n", total)

	if total > 0 {
		b.WriteString("## Table of Contents\n\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- [%s](#%s)\n", name, sectionAnchor(name))
		}
		b.WriteString("\n")

		for _, name := range names {
			fmt.Fprintf(&b, "## %s\n\n", name)
			for i, p := range sections[name] {
				fmt.Fprintf(&b, "### %d. %s\n\n", i+1, formatFAQQuestion(p.Question))
				fmt.Fprintf(&b, "%s\n\n", p.Answer)
				b.WriteString("---\n\n")
			}
		}
	}

	b.WriteString("## Additional Information\n\n")
	b.WriteString("These answers were collected automatically from community conversations and may be out of date. When in doubt, ask in the channel.\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return 0, fmt.Errorf("failed to write faq: %w", err)
	}
	return total, nil
}

// cleanMarkdownText strips user mentions and collapses whitespace so
// chat text reads cleanly in a document
func cleanMarkdownText(s string) string {
	s = mentionRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func categorizeQuestion(question string) string {
	lower := strings.ToLower(question)
	for _, cat := range faqCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return faqGeneralCategory
}

// sectionAnchor matches the anchors GitHub derives from headings
func sectionAnchor(name string) string {
	anchor := strings.ToLower(name)
	anchor = strings.ReplaceAll(anchor, " ", "-")
	anchor = strings.ReplaceAll(anchor, "&", "")
	anchor = strings.ReplaceAll(anchor, "/", "")
	return anchor
}

func formatFAQQuestion(q string) string {
	q = strings.TrimSpace(q)
	if !strings.HasSuffix(q, "?") {
		q += "?"
	}
	return q
}
