package pagetext

import (
	"bytes"
	"context"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// Plain extracts text with the pure-Go ledongthuc/pdf reader. It copes with
// fewer files than Fitz but needs no cgo.
type Plain struct{}

func (Plain) PageTexts(ctx context.Context, doc *pdfdoc.Document) (texts []string, err error) {
	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	data := doc.Bytes()
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := reader.NumPage()
	texts = make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Debug().Err(err).Int("page", i).Msg("plain text extraction failed")
			continue
		}
		texts[i-1] = cleanText(text, i)
	}
	return texts, nil
}
