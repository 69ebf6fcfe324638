package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

// PageExtractor builds a new PDF holding the listed pages of doc, in list
// order. Pages may repeat.
type PageExtractor interface {
	ExtractPages(ctx context.Context, doc *Document, pages []int) ([]byte, error)
}

var disableConfigDir sync.Once

// Pdfcpu implements page-level document assembly with pdfcpu.
type Pdfcpu struct{}

// NewPdfcpu returns a pdfcpu-backed engine. pdfcpu's on-disk config dir is
// disabled so the process never writes to the user's home.
func NewPdfcpu() *Pdfcpu {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Pdfcpu{}
}

func (p *Pdfcpu) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open parses data, counts its pages and returns the Document.
func (p *Pdfcpu) Open(name string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	n, err := api.PageCount(bytes.NewReader(data), p.conf())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	log.Debug().Str("file", name).Int("pages", n).Msg("opened pdf")
	return NewDocument(name, data, n), nil
}

// ExtractPages collects the given pages into a new PDF.
func (p *Pdfcpu) ExtractPages(ctx context.Context, doc *Document, pages []int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckPages(doc.PageCount(), pages); err != nil {
		return nil, fmt.Errorf("extract %v from %d pages: %w", pages, doc.PageCount(), err)
	}
	sel := make([]string, len(pages))
	for i, pg := range pages {
		sel[i] = strconv.Itoa(pg)
	}
	var buf bytes.Buffer
	if err := api.Collect(bytes.NewReader(doc.Bytes()), &buf, sel, p.conf()); err != nil {
		return nil, fmt.Errorf("collect pages: %w", err)
	}
	return buf.Bytes(), nil
}

// Merge concatenates whole documents in order.
func (p *Pdfcpu) Merge(ctx context.Context, parts [][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrEmpty
	}
	if len(parts) == 1 {
		return append([]byte(nil), parts[0]...), nil
	}
	rs := make([]io.ReadSeeker, len(parts))
	for i, b := range parts {
		rs[i] = bytes.NewReader(b)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rs, &buf, false, p.conf()); err != nil {
		return nil, fmt.Errorf("merge %d documents: %w", len(parts), err)
	}
	return buf.Bytes(), nil
}

// TwoUp lays out data two pages per sheet, in page order. An odd trailing
// page occupies a sheet alone.
func (p *Pdfcpu) TwoUp(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf := p.conf()
	nup, err := api.PDFNUpConfig(2, "", conf)
	if err != nil {
		return nil, fmt.Errorf("n-up config: %w", err)
	}
	var buf bytes.Buffer
	if err := api.NUp(bytes.NewReader(data), &buf, nil, nil, nup, conf); err != nil {
		return nil, fmt.Errorf("n-up: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop trims percent of each page's width and height from every edge of
// every page. percent must be in [0, 50); zero returns data unchanged.
func (p *Pdfcpu) Crop(ctx context.Context, data []byte, percent float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if percent == 0 {
		return data, nil
	}
	if percent < 0 || percent >= 50 {
		return nil, fmt.Errorf("%w: crop %g%% must be in [0, 50)", ErrCropRange, percent)
	}
	box, err := api.Box(strconv.FormatFloat(percent, 'f', -1, 64)+"%", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("crop box: %w", err)
	}
	var buf bytes.Buffer
	if err := api.Crop(bytes.NewReader(data), &buf, nil, box, p.conf()); err != nil {
		return nil, fmt.Errorf("crop: %w", err)
	}
	return buf.Bytes(), nil
}
