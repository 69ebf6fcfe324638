// Package pagetext pulls per-page text out of in-memory PDFs. Text feeds
// part detection; it is never shown to users.
package pagetext

import (
	"context"
	"fmt"
	"strings"

	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// Extractor returns the text of every page of doc, index 0 being page 1.
// A page whose text cannot be read yields "".
type Extractor interface {
	PageTexts(ctx context.Context, doc *pdfdoc.Document) ([]string, error)
}

// Fallback tries each extractor in order and returns the first result that
// carries any text at all.
type Fallback []Extractor

func (f Fallback) PageTexts(ctx context.Context, doc *pdfdoc.Document) ([]string, error) {
	var lastErr error
	var empty []string
	for _, ex := range f {
		texts, err := ex.PageTexts(ctx, doc)
		if err != nil {
			log.Warn().Err(err).Str("file", doc.Name()).Str("extractor", fmt.Sprintf("%T", ex)).Msg("page text extraction failed, trying next")
			lastErr = err
			continue
		}
		if hasText(texts) {
			return texts, nil
		}
		if empty == nil {
			empty = texts
		}
	}
	if empty != nil {
		return empty, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no extractor configured")
	}
	return nil, lastErr
}

func hasText(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

// cleanText drops blank lines, bare page numbers and symbol-only noise.
// Short all-caps lines are kept since part names are usually printed that way.
func cleanText(text string, pageNum int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isPageNumber(trimmed, pageNum) || isNoise(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

func isPageNumber(line string, pageNum int) bool {
	if line == fmt.Sprintf("%d", pageNum) {
		return true
	}
	for _, pattern := range []string{
		fmt.Sprintf("Page %d", pageNum),
		fmt.Sprintf("- %d -", pageNum),
		fmt.Sprintf("[%d]", pageNum),
	} {
		if strings.EqualFold(line, pattern) {
			return true
		}
	}
	return false
}

func isNoise(line string) bool {
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
