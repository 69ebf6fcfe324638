package filetype

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("empty file")
	// ErrNotPDF is returned when content is neither a PDF nor a ZIP of PDFs.
	ErrNotPDF = errors.New("not a pdf")
	// ErrTooLarge is returned when an archive expands past the detector's caps.
	ErrTooLarge = errors.New("archive expands too large")
)

const (
	MIMEPDF = "application/pdf"
	MIMEZip = "application/zip"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	IsArchive   bool
	Description string
}

// File is a named blob, as uploaded or unpacked from an archive.
type File struct {
	Name string
	Data []byte
}

// Detector handles file type detection using magic bytes
type Detector struct {
	// MaxEntryBytes caps each unpacked archive entry.
	MaxEntryBytes int64
	// MaxTotalBytes caps the sum of all unpacked entries of one archive.
	MaxTotalBytes int64
}

// DefaultMaxExpandBytes bounds archive expansion when no cap is configured.
const DefaultMaxExpandBytes = 200 << 20

// New creates a new file type detector with DefaultMaxExpandBytes caps.
func New() *Detector {
	return NewLimited(DefaultMaxExpandBytes)
}

// NewLimited creates a detector whose unpacked zip entries are capped at
// maxExpand bytes each and in total. maxExpand <= 0 disables the caps.
func NewLimited(maxExpand int64) *Detector {
	return &Detector{MaxEntryBytes: maxExpand, MaxTotalBytes: maxExpand}
}

// Detect detects the actual file type using magic bytes, not the name.
func (d *Detector) Detect(name string, data []byte) (*FileTypeInfo, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}

	switch {
	case mtype.Is(MIMEPDF):
		info.IsPDF = true
		info.Description = "PDF document"
	case mtype.Is(MIMEZip) || mtype.Is("application/x-zip-compressed"):
		info.MIMEType = MIMEZip
		info.IsArchive = true
		info.Description = "ZIP archive"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")
	return info, nil
}

// RequirePDF fails unless data is a PDF.
func (d *Detector) RequirePDF(name string, data []byte) error {
	info, err := d.Detect(name, data)
	if err != nil {
		return err
	}
	if !info.IsPDF {
		return fmt.Errorf("%w: %s is %s", ErrNotPDF, name, info.MIMEType)
	}
	return nil
}

// ExpandPDFs returns the PDFs carried by an upload: the file itself when it
// is a PDF, or every PDF entry when it is a ZIP. Directory entries, macOS
// resource forks and non-PDF entries are skipped.
func (d *Detector) ExpandPDFs(f File) ([]File, error) {
	info, err := d.Detect(f.Name, f.Data)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsPDF:
		return []File{f}, nil
	case info.IsArchive:
		return d.unzip(f)
	}
	return nil, fmt.Errorf("%w: %s is %s", ErrNotPDF, f.Name, info.MIMEType)
}

func (d *Detector) unzip(f File) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", f.Name, err)
	}
	var out []File
	var total int64
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(zf.Name, "__MACOSX/") || !strings.EqualFold(path.Ext(zf.Name), ".pdf") {
			continue
		}
		limit := d.MaxEntryBytes
		if d.MaxTotalBytes > 0 {
			remaining := d.MaxTotalBytes - total
			if remaining <= 0 {
				return nil, fmt.Errorf("%w: %s expands past %d bytes", ErrTooLarge, f.Name, d.MaxTotalBytes)
			}
			if limit <= 0 || remaining < limit {
				limit = remaining
			}
		}
		data, err := readEntry(zf, limit)
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", zf.Name, f.Name, err)
		}
		total += int64(len(data))
		if !mimetype.Detect(data).Is(MIMEPDF) {
			log.Warn().Str("zip", f.Name).Str("entry", zf.Name).Msg("skipping zip entry that is not a pdf")
			continue
		}
		out = append(out, File{Name: path.Base(zf.Name), Data: data})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s contains no pdf files", ErrNotPDF, f.Name)
	}
	log.Debug().Str("zip", f.Name).Int("pdfs", len(out)).Msg("unpacked pdfs from zip")
	return out, nil
}

// readEntry unpacks zf, reading at most limit bytes. limit <= 0 means
// unbounded.
func readEntry(zf *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && zf.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: entry declares %d bytes, limit %d", ErrTooLarge, zf.UncompressedSize64, limit)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: entry exceeds %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// ArchiveBaseName returns name without a case-insensitive .zip suffix.
func ArchiveBaseName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if strings.EqualFold(path.Ext(base), ".zip") {
		base = base[:len(base)-4]
	}
	return base
}
