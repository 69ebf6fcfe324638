// Package artifact derives the downloadable sub-document and file name for
// each segment of a partition.
package artifact

import (
	"errors"
	"fmt"

	"github.com/local/partkit/internal/segment"
)

// ErrStale is returned when an artifact's last regeneration failed and its
// bytes cannot be exported.
var ErrStale = errors.New("artifact is stale")

// Artifact is the exportable output for one segment.
type Artifact struct {
	SegmentID segment.SegmentID
	Filename  string
	// Pages are the source pages Bytes were extracted from.
	Pages []int
	Bytes []byte
	// Err holds the last regeneration failure. Bytes are nil while it is set.
	Err error
}

// Stale reports whether the artifact has no usable bytes.
func (a *Artifact) Stale() bool { return a == nil || a.Err != nil || a.Bytes == nil }

// RegenerationError reports a failed regeneration of one segment.
type RegenerationError struct {
	SegmentID segment.SegmentID
	Label     string
	Err       error
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("regenerate segment %d (%s): %v", e.SegmentID, e.Label, e.Err)
}

func (e *RegenerationError) Unwrap() error { return e.Err }

// SanitizeLabel is segment.SanitizeLabel, the file-name form of a label.
func SanitizeLabel(label string) string { return segment.SanitizeLabel(label) }

// Filename returns "{base}-{sanitized label}.pdf".
func Filename(base, label string) string {
	return base + "-" + SanitizeLabel(label) + ".pdf"
}
