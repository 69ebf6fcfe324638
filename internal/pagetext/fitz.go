package pagetext

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// Fitz extracts text with MuPDF through go-fitz.
type Fitz struct{}

// NewFitz creates a go-fitz based extractor.
func NewFitz() *Fitz { return &Fitz{} }

func (Fitz) PageTexts(ctx context.Context, doc *pdfdoc.Document) ([]string, error) {
	fd, err := fitz.NewFromMemory(doc.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer fd.Close()

	n := fd.NumPage()
	out := make([]string, n)
	chars := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := fd.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Failed to extract text from page")
			continue
		}
		out[i] = cleanText(raw, i+1)
		chars += len(out[i])
	}
	log.Debug().Str("file", doc.Name()).Int("pages", n).Int("chars", chars).Msg("extracted page text with go-fitz")
	return out, nil
}
