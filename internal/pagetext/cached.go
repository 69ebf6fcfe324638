package pagetext

import (
	"context"

	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// Cache persists page texts by document hash.
type Cache interface {
	GetPageTexts(ctx context.Context, docHash string) ([]string, bool, error)
	SavePageTexts(ctx context.Context, docHash string, texts []string) error
}

// Cached serves page texts from Cache when present and fills it otherwise.
// Cache failures are logged and never fail extraction.
type Cached struct {
	Cache Cache
	Next  Extractor
}

func (c Cached) PageTexts(ctx context.Context, doc *pdfdoc.Document) ([]string, error) {
	texts, ok, err := c.Cache.GetPageTexts(ctx, doc.Hash())
	if err != nil {
		log.Warn().Err(err).Str("hash", doc.Hash()).Msg("page text cache read failed")
	}
	if ok && len(texts) == doc.PageCount() {
		log.Debug().Str("hash", doc.Hash()).Msg("page text cache hit")
		return texts, nil
	}

	texts, err = c.Next.PageTexts(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.SavePageTexts(ctx, doc.Hash(), texts); err != nil {
		log.Warn().Err(err).Str("hash", doc.Hash()).Msg("page text cache write failed")
	}
	return texts, nil
}
