// Package segmenter proposes the initial split of a score into instrument
// parts by matching page header text against an instrument dictionary.
package segmenter

import (
	"context"
	"fmt"

	"github.com/local/partkit/internal/pagetext"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/rs/zerolog/log"
)

// DefaultHeaderChars is the header window used when none is configured.
const DefaultHeaderChars = 400

// Segmenter turns page text into segment proposals.
type Segmenter struct {
	dict        *Dictionary
	texts       pagetext.Extractor
	headerChars int
}

func New(dict *Dictionary, texts pagetext.Extractor, headerChars int) *Segmenter {
	if headerChars <= 0 {
		headerChars = DefaultHeaderChars
	}
	return &Segmenter{dict: dict, texts: texts, headerChars: headerChars}
}

// Propose extracts page text from doc and proposes segments covering every
// page.
func (s *Segmenter) Propose(ctx context.Context, doc *pdfdoc.Document) ([]segment.Proposal, error) {
	texts, err := s.texts.PageTexts(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract page text: %w", err)
	}
	if len(texts) != doc.PageCount() {
		log.Warn().Str("file", doc.Name()).Int("texts", len(texts)).Int("pages", doc.PageCount()).Msg("page text count differs from page count")
		texts = fit(texts, doc.PageCount())
	}
	if sample := pagetext.SampleTexts(texts, 0); !sample.HasText {
		log.Warn().Str("file", doc.Name()).Int("chars", sample.Chars).Msg("document has little or no text, parts may not be detected")
	}
	props := s.ProposeFromTexts(texts)
	log.Info().Str("file", doc.Name()).Int("pages", doc.PageCount()).Int("parts", len(props)).Msg("proposed parts")
	return props, nil
}

// ProposeFromTexts groups pages into runs by detected instrument. A page
// without a detection continues the current run; pages before the first
// detection form "Part 1".
func (s *Segmenter) ProposeFromTexts(texts []string) []segment.Proposal {
	var props []segment.Proposal
	for i, t := range texts {
		page := i + 1
		label, ok := s.dict.Match(header(t, s.headerChars))
		if len(props) == 0 {
			if !ok {
				label = "Part 1"
			}
			props = append(props, segment.Proposal{Label: label, StartPage: page, EndPage: page})
			continue
		}
		cur := &props[len(props)-1]
		if !ok || label == cur.Label {
			cur.EndPage = page
			continue
		}
		props = append(props, segment.Proposal{Label: label, StartPage: page, EndPage: page})
	}
	return props
}

func header(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func fit(texts []string, n int) []string {
	out := make([]string, n)
	copy(out, texts)
	return out
}
