package artifact

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheEntries bounds the extraction memo when no size is given.
const DefaultCacheEntries = 256

// Regenerator extracts segment pages into standalone PDFs. Output is
// memoized by document hash and page list, so regenerating an unchanged
// segment returns identical bytes even though the PDF writer stamps
// timestamps.
type Regenerator struct {
	pages pdfdoc.PageExtractor
	memo  *lru.Cache[string, []byte]
	group singleflight.Group
}

func NewRegenerator(pages pdfdoc.PageExtractor, cacheEntries int) *Regenerator {
	if cacheEntries <= 0 {
		cacheEntries = DefaultCacheEntries
	}
	memo, err := lru.New[string, []byte](cacheEntries)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &Regenerator{pages: pages, memo: memo}
}

// Regenerate builds the artifact for seg. On failure the returned artifact
// carries the error, keeps the filename and has no bytes; the error is a
// *RegenerationError.
func (r *Regenerator) Regenerate(ctx context.Context, seg segment.Segment, doc *pdfdoc.Document, base string) (*Artifact, error) {
	a := &Artifact{SegmentID: seg.ID, Filename: Filename(base, seg.Label), Pages: append([]int(nil), seg.Pages...)}

	start := time.Now()
	key := memoKey(doc.Hash(), seg.Pages)
	if b, ok := r.memo.Get(key); ok {
		metrics.ObserveRegeneration("cached", 0)
		a.Bytes = b
		return a, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		b, err := r.pages.ExtractPages(ctx, doc, seg.Pages)
		if err != nil {
			return nil, err
		}
		r.memo.Add(key, b)
		return b, nil
	})
	if err != nil {
		metrics.ObserveRegeneration("error", time.Since(start))
		log.Error().Err(err).Int("segment", int(seg.ID)).Str("label", seg.Label).Str("pages", seg.RangeLabel()).Msg("regeneration failed")
		a.Err = err
		return a, &RegenerationError{SegmentID: seg.ID, Label: seg.Label, Err: err}
	}
	metrics.ObserveRegeneration("ok", time.Since(start))
	a.Bytes = v.([]byte)
	log.Debug().Int("segment", int(seg.ID)).Str("file", a.Filename).Int("size", len(a.Bytes)).Dur("took", time.Since(start)).Msg("regenerated artifact")
	return a, nil
}

// Refresh brings prev in line with seg. When prev holds usable bytes for the
// same pages only the filename is rederived, so an unchanged segment keeps
// byte-identical output however long ago it was extracted. Anything else is
// regenerated.
func (r *Regenerator) Refresh(ctx context.Context, prev *Artifact, seg segment.Segment, doc *pdfdoc.Document, base string) (*Artifact, error) {
	if !prev.Stale() && prev.SegmentID == seg.ID && slices.Equal(prev.Pages, seg.Pages) {
		metrics.ObserveRegeneration("reused", 0)
		return Rename(prev, base, seg.Label), nil
	}
	return r.Regenerate(ctx, seg, doc, base)
}

// Rename returns a copy of a with the filename derived from base and label.
// Bytes and error state are shared.
func Rename(a *Artifact, base, label string) *Artifact {
	out := *a
	out.Filename = Filename(base, label)
	return &out
}

func memoKey(hash string, pages []int) string {
	var b strings.Builder
	b.WriteString(hash)
	b.WriteByte(':')
	for i, p := range pages {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// ErrorList flattens regeneration errors for reporting.
func ErrorList(errs []*RegenerationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = fmt.Sprintf("%s: %v", e.Label, e.Err)
	}
	return out
}
