package pdfdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("empty document")
	// ErrCorrupt wraps parser failures on the source bytes.
	ErrCorrupt = errors.New("unreadable pdf")
	// ErrPageRange is returned when a page list references pages outside 1..N.
	ErrPageRange = errors.New("page out of range")
	// ErrCropRange is returned for crop margins outside [0, 50) percent.
	ErrCropRange = errors.New("crop margin out of range")
	// ErrTooLarge is returned when a fetched source exceeds the size cap.
	ErrTooLarge = errors.New("source too large")
)

// Document is an immutable source PDF held in memory. Pages are 1-based.
type Document struct {
	name      string
	data      []byte
	pageCount int
	hash      string
}

// NewDocument wraps bytes whose page count is already known.
func NewDocument(name string, data []byte, pageCount int) *Document {
	sum := sha256.Sum256(data)
	return &Document{name: name, data: data, pageCount: pageCount, hash: hex.EncodeToString(sum[:])}
}

// Name returns the original file name.
func (d *Document) Name() string { return d.name }

// PageCount returns N.
func (d *Document) PageCount() int { return d.pageCount }

// Bytes returns the source bytes. Callers must not modify them.
func (d *Document) Bytes() []byte { return d.data }

// Hash returns the hex SHA-256 of the source bytes.
func (d *Document) Hash() string { return d.hash }

// BaseName returns the file name without directory and .pdf extension.
func (d *Document) BaseName() string { return BaseName(d.name) }

var pdfExt = regexp.MustCompile(`(?i)\.pdf$`)

// BaseName strips directories and a case-insensitive .pdf suffix.
func BaseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return pdfExt.ReplaceAllString(name, "")
}

// CheckPages verifies every page is within 1..pageCount.
func CheckPages(pageCount int, pages []int) error {
	if len(pages) == 0 {
		return ErrPageRange
	}
	for _, p := range pages {
		if p < 1 || p > pageCount {
			return ErrPageRange
		}
	}
	return nil
}
