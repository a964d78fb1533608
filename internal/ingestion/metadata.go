package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Source formats
const (
	FormatText = "text"
	FormatHTML = "html"
)

// MaxJobDescriptionChars bounds the cleaned text handed to providers
const MaxJobDescriptionChars = 20000

// Metadata describes how a job description was normalized.
// It is stored alongside the SOURCE_JOB_DESCRIPTION artifact.
type Metadata struct {
	Format        string `json:"format"`
	OriginalBytes int    `json:"original_bytes"`
	Chars         int    `json:"chars"`
	Words         int    `json:"words"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// ToMap returns the metadata in artifact metadata form
func (m *Metadata) ToMap() map[string]any {
	out := map[string]any{
		"format":         m.Format,
		"original_bytes": m.OriginalBytes,
		"chars":          m.Chars,
		"words":          m.Words,
	}
	if m.Truncated {
		out["truncated"] = true
	}
	return out
}

// CleanJobDescription converts a raw job description (plain text or HTML)
// into normalized text ready for prompting.
func CleanJobDescription(raw string) (string, *Metadata, error) {
	meta := &Metadata{Format: FormatText, OriginalBytes: len(raw)}

	text := raw
	if LooksLikeHTML(raw) {
		converted, err := HTMLToText(raw)
		if err != nil {
			return "", nil, fmt.Errorf("failed to convert job description HTML: %w", err)
		}
		text = converted
		meta.Format = FormatHTML
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	cleaned := CleanText(text)
	if utf8.RuneCountInString(cleaned) > MaxJobDescriptionChars {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:MaxJobDescriptionChars]))
		meta.Truncated = true
	}

	meta.Chars = utf8.RuneCountInString(cleaned)
	meta.Words = len(strings.Fields(cleaned))
	return cleaned, meta, nil
}
