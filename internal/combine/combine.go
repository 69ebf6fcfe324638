// Package combine lays out a document two pages per sheet for printing.
package combine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// DefaultZipName names the archive of several combined files when the
// upload was not itself a zip.
const DefaultZipName = "combined-pdfs"

// ErrBadPairings is returned for pairings that do not cover the document
// in order.
var ErrBadPairings = errors.New("invalid pairings")

// Pairing is one sheet: a single page or two consecutive pages.
type Pairing []int

// Engine is the page-level PDF toolkit the combiner needs.
type Engine interface {
	pdfdoc.PageExtractor
	TwoUp(ctx context.Context, data []byte) ([]byte, error)
	Crop(ctx context.Context, data []byte, percent float64) ([]byte, error)
	Merge(ctx context.Context, parts [][]byte) ([]byte, error)
}

// Pairings splits pages 1..pageCount into sheets. With firstPageAlone, page
// 1 gets its own sheet and pairing resumes at page 2. A trailing unpaired
// page gets its own sheet.
//
//	Pairings(5, true)  = [[1] [2 3] [4 5]]
//	Pairings(5, false) = [[1 2] [3 4] [5]]
func Pairings(pageCount int, firstPageAlone bool) []Pairing {
	var out []Pairing
	p := 1
	if firstPageAlone && pageCount >= 1 {
		out = append(out, Pairing{1})
		p = 2
	}
	for ; p <= pageCount; p += 2 {
		if p+1 <= pageCount {
			out = append(out, Pairing{p, p + 1})
		} else {
			out = append(out, Pairing{p})
		}
	}
	return out
}

// Validate checks pairings cover 1..pageCount in order with sheets of one
// page or two consecutive pages.
func Validate(pageCount int, pairings []Pairing) error {
	next := 1
	for i, pr := range pairings {
		switch {
		case len(pr) == 1 && pr[0] == next:
			next++
		case len(pr) == 2 && pr[0] == next && pr[1] == next+1:
			next += 2
		default:
			return fmt.Errorf("%w: sheet %d is %v, expected to start at page %d", ErrBadPairings, i, []int(pr), next)
		}
	}
	if next != pageCount+1 {
		return fmt.Errorf("%w: covers %d of %d pages", ErrBadPairings, next-1, pageCount)
	}
	return nil
}

// runs groups pairings so each group is laid out by one n-up pass: a
// single-page sheet closes its group, so it lands alone on the group's last
// sheet.
func runs(pairings []Pairing) [][]int {
	var out [][]int
	var cur []int
	for _, pr := range pairings {
		cur = append(cur, pr...)
		if len(pr) == 1 {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Combine renders doc with the given pairings, one sheet per pairing. A
// positive cropPercent trims that share of each source page from every edge
// before pages are laid out.
func Combine(ctx context.Context, eng Engine, doc *pdfdoc.Document, pairings []Pairing, cropPercent float64) ([]byte, error) {
	if err := Validate(doc.PageCount(), pairings); err != nil {
		return nil, err
	}
	if cropPercent < 0 || cropPercent >= 50 {
		return nil, fmt.Errorf("%w: crop %g%% must be in [0, 50)", pdfdoc.ErrCropRange, cropPercent)
	}
	start := time.Now()
	var sheets [][]byte
	for _, pages := range runs(pairings) {
		part, err := eng.ExtractPages(ctx, doc, pages)
		if err != nil {
			return nil, fmt.Errorf("extract pages %v: %w", pages, err)
		}
		if cropPercent > 0 {
			if part, err = eng.Crop(ctx, part, cropPercent); err != nil {
				return nil, err
			}
		}
		nup, err := eng.TwoUp(ctx, part)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, nup)
	}
	out, err := eng.Merge(ctx, sheets)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", doc.Name()).Int("sheets", len(pairings)).Int("size", len(out)).Dur("took", time.Since(start)).Msg("combined pdf")
	return out, nil
}

// CombinedName returns "{name without .pdf}-combined.pdf".
func CombinedName(name string) string {
	return pdfdoc.BaseName(name) + "-combined.pdf"
}

// Opener parses source bytes into a Document.
type Opener interface {
	Open(name string, data []byte) (*pdfdoc.Document, error)
}

// Options control a multi-file combine.
type Options struct {
	FirstPageAlone bool
	// CropPercent trims each page edge by this share of the page size,
	// in [0, 50). Zero disables cropping.
	CropPercent float64
	// ZipName overrides the archive name; ".zip" is appended.
	ZipName string
}

// Result is the output of Files: the combined PDFs in upload order and the
// name to use when packing them together.
type Result struct {
	Files   []filetype.File
	ZipName string
}

// Files combines every PDF carried by uploads (PDFs or zips of PDFs).
func Files(ctx context.Context, eng Engine, opener Opener, det *filetype.Detector, uploads []filetype.File, opts Options) (res *Result, err error) {
	defer func() { metrics.IncExport("combine", err) }()

	res = &Result{ZipName: DefaultZipName}
	for _, up := range uploads {
		pdfs, err := det.ExpandPDFs(up)
		if err != nil {
			return nil, err
		}
		if info, _ := det.Detect(up.Name, up.Data); info != nil && info.IsArchive && res.ZipName == DefaultZipName {
			res.ZipName = filetype.ArchiveBaseName(up.Name)
		}
		for _, f := range pdfs {
			doc, err := opener.Open(f.Name, f.Data)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", f.Name, err)
			}
			out, err := Combine(ctx, eng, doc, Pairings(doc.PageCount(), opts.FirstPageAlone), opts.CropPercent)
			if err != nil {
				return nil, fmt.Errorf("combine %s: %w", f.Name, err)
			}
			res.Files = append(res.Files, filetype.File{Name: CombinedName(f.Name), Data: out})
		}
	}
	if opts.ZipName != "" {
		res.ZipName = opts.ZipName
	}
	res.ZipName = filetype.ArchiveBaseName(res.ZipName) + ".zip"
	return res, nil
}
