package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options control thumbnail rendering.
type Options struct {
	DPI     int
	Quality int
	Color   ColorMode
}

// Thumbnail is a rendered page preview.
type Thumbnail struct {
	Page   int
	Width  int
	Height int
	JPEG   []byte
}

// Renderer renders pages of in-memory documents with MuPDF.
type Renderer struct {
	opts Options
}

// NewRenderer fills unset options with small preview defaults.
func NewRenderer(opts Options) *Renderer {
	if opts.DPI <= 0 {
		opts.DPI = 50
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	if opts.Color == "" {
		opts.Color = ColorRGB
	}
	return &Renderer{opts: opts}
}

// RenderPage renders 1-based pageNum of doc as JPEG.
func (r *Renderer) RenderPage(doc *pdfdoc.Document, pageNum int) (*Thumbnail, error) {
	if err := pdfdoc.CheckPages(doc.PageCount(), []int{pageNum}); err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageNum, err)
	}
	fd, err := fitz.NewFromMemory(doc.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer fd.Close()

	// go-fitz uses 0-based indexing
	img, err := fd.ImageDPI(pageNum-1, float64(r.opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	out, err := encode(img, r.opts)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("jpeg_size", len(out)).
		Str("color", string(r.opts.Color)).
		Msg("rendered page thumbnail")
	return &Thumbnail{Page: pageNum, Width: bounds.Dx(), Height: bounds.Dy(), JPEG: out}, nil
}

func encode(img image.Image, opts Options) ([]byte, error) {
	final := img
	if opts.Color == ColorGray {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		final = gray
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions extracts dimensions from JPEG bytes.
func Dimensions(jpegBytes []byte) (width, height int, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(jpegBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
