// Package judge abstracts the external LLM used for structured extraction and
// closed-set classification. The service is treated as a fallible oracle:
// implementations surface transport errors, callers interpret off-format
// answers conservatively.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrFormat is returned by ParseToken when an answer falls outside the
// allowed token set.
var ErrFormat = errors.New("judge answer outside the allowed token set")

// Judge is the capability interface for the LLM judge service.
type Judge interface {
	// Extract runs a structured-extraction prompt and returns the raw JSON
	// object text from the response.
	Extract(ctx context.Context, prompt string) (json.RawMessage, error)

	// Classify runs a classification prompt and returns the raw answer text,
	// trimmed. Callers map it onto a closed token set with ParseToken.
	Classify(ctx context.Context, prompt string) (string, error)
}

// ParseToken normalizes an answer and matches it against a closed token set.
// Matching is case-insensitive and ignores surrounding punctuation the model
// sometimes adds. Returns ErrFormat when nothing matches.
func ParseToken(answer string, allowed ...string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(answer))
	norm = strings.Trim(norm, `."'!`)
	for _, tok := range allowed {
		if norm == tok {
			return tok, nil
		}
	}
	return "", ErrFormat
}

// Escape replaces characters with special meaning in XML to prevent prompt
// injection when embedding user or store content in XML-delimited templates.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// stripFences removes a Markdown code fence around a JSON payload. Models
// occasionally wrap JSON output despite instructions not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
