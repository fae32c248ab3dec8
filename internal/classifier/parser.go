package classifier

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled patterns. The model is instructed to return bare JSON,
// but small models still wrap it in code fences or prose often enough
// that parsing needs fallbacks.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// ParseResult represents the result of a verdict parse
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse extracts a JSON verdict from model output, tolerating code
// fences, surrounding prose, and trailing commas.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Strip code fences and retry
//  3. Extract the outermost object and fix trailing commas
func Parse[T any](text string, context string) ParseResult[T] {
	text = strings.TrimSpace(text)
	if text == "" {
		return ParseResult[T]{Error: "empty response"}
	}

	var data T
	if err := json.Unmarshal([]byte(text), &data); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if err := json.Unmarshal([]byte(candidate), &data); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	if m := objectRegex.FindString(text); m != "" {
		cleaned := trailingCommaRegex.ReplaceAllString(m, "$1")
		if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	slog.Warn("failed to parse classifier response",
		"context", context,
		"response", truncate(text, 200))
	return ParseResult[T]{Error: "no parseable JSON object in response"}
}
