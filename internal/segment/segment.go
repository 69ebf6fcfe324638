// Package segment holds the partition of a document's pages into labeled,
// ordered segments and the structural edits allowed on it.
package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SegmentID identifies a segment for the lifetime of its partition. It stays
// valid across edits that shift positions; it is retired when the segment is
// merged away or split.
type SegmentID int

// Segment is one labeled run of source pages (1-based page numbers).
type Segment struct {
	ID    SegmentID `json:"id"`
	Label string    `json:"label"`
	Pages []int     `json:"pages"`
}

// StartPage returns the first (lowest) page of the segment.
func (s Segment) StartPage() int {
	if len(s.Pages) == 0 {
		return 0
	}
	return s.Pages[0]
}

// EndPage returns the last (highest) page of the segment.
func (s Segment) EndPage() int {
	if len(s.Pages) == 0 {
		return 0
	}
	return s.Pages[len(s.Pages)-1]
}

// PageCount returns the number of pages in the segment.
func (s Segment) PageCount() int { return len(s.Pages) }

// Contiguous reports whether Pages is the full range [StartPage, EndPage].
func (s Segment) Contiguous() bool {
	return len(s.Pages) > 0 && s.EndPage()-s.StartPage()+1 == len(s.Pages)
}

// RangeLabel renders "Page 3" or "Pages 3-7".
func (s Segment) RangeLabel() string {
	if s.StartPage() == s.EndPage() {
		return fmt.Sprintf("Page %d", s.StartPage())
	}
	return fmt.Sprintf("Pages %d-%d", s.StartPage(), s.EndPage())
}

func (s Segment) clone() Segment {
	out := s
	out.Pages = append([]int(nil), s.Pages...)
	return out
}

// Proposal is one entry of a segmenter's output. When Pages is empty the
// range [StartPage, EndPage] is used.
type Proposal struct {
	Label     string `json:"label"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	Pages     []int  `json:"pages,omitempty"`
}

// ErrInvalidProposal is returned when a segmenter proposal does not cover the
// document exactly once in ascending order.
var ErrInvalidProposal = errors.New("invalid segmentation proposal")

// Op names a structural or label edit.
type Op string

const (
	OpRename    Op = "rename"
	OpMergeUp   Op = "merge_up"
	OpMergeDown Op = "merge_down"
	OpSplit     Op = "split"
)

// Change describes the effect of an applied edit: segments whose artifacts
// must be regenerated, and segments that no longer exist.
type Change struct {
	Op      Op          `json:"op"`
	Touched []SegmentID `json:"touched"`
	Removed []SegmentID `json:"removed,omitempty"`
}

// Partition is the ordered list of segments covering pages 1..N exactly once.
// It is not safe for concurrent use; callers serialize edits.
type Partition struct {
	pageCount int
	segs      []Segment
	nextID    SegmentID
}

// NewPartition builds a partition from segmenter output. The proposal must
// cover 1..pageCount exactly once, in page order, with no empty segment.
func NewPartition(pageCount int, proposals []Proposal) (*Partition, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("%w: document has no pages", ErrInvalidProposal)
	}
	if len(proposals) == 0 {
		return nil, fmt.Errorf("%w: no segments proposed", ErrInvalidProposal)
	}
	p := &Partition{pageCount: pageCount, segs: make([]Segment, 0, len(proposals))}
	for i, prop := range proposals {
		pages := prop.Pages
		if len(pages) == 0 {
			if prop.StartPage < 1 || prop.EndPage < prop.StartPage {
				return nil, fmt.Errorf("%w: segment %d has range %d-%d", ErrInvalidProposal, i, prop.StartPage, prop.EndPage)
			}
			pages = make([]int, 0, prop.EndPage-prop.StartPage+1)
			for pg := prop.StartPage; pg <= prop.EndPage; pg++ {
				pages = append(pages, pg)
			}
		} else {
			pages = append([]int(nil), pages...)
		}
		label := strings.TrimSpace(prop.Label)
		if label == "" {
			label = fmt.Sprintf("Part %d", i+1)
		}
		p.segs = append(p.segs, Segment{ID: p.allocID(), Label: label, Pages: pages})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Partition) allocID() SegmentID {
	p.nextID++
	return p.nextID
}

// Validate checks coverage, ordering and non-emptiness.
func (p *Partition) Validate() error {
	next := 1
	for i, s := range p.segs {
		if len(s.Pages) == 0 {
			return fmt.Errorf("%w: segment %d is empty", ErrInvalidProposal, i)
		}
		for _, pg := range s.Pages {
			if pg != next {
				return fmt.Errorf("%w: segment %d has page %d, expected %d", ErrInvalidProposal, i, pg, next)
			}
			next++
		}
	}
	if next-1 != p.pageCount {
		return fmt.Errorf("%w: covers %d of %d pages", ErrInvalidProposal, next-1, p.pageCount)
	}
	return nil
}

// Len returns the number of segments.
func (p *Partition) Len() int { return len(p.segs) }

// PageCount returns N, the number of pages partitioned.
func (p *Partition) PageCount() int { return p.pageCount }

// Segments returns a deep copy of the segments in order.
func (p *Partition) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	for i, s := range p.segs {
		out[i] = s.clone()
	}
	return out
}

// At returns a copy of the segment at index i.
func (p *Partition) At(i int) (Segment, bool) {
	if i < 0 || i >= len(p.segs) {
		return Segment{}, false
	}
	return p.segs[i].clone(), true
}

// IndexOf returns the current position of id, or -1.
func (p *Partition) IndexOf(id SegmentID) int {
	for i, s := range p.segs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the segment with the given id.
func (p *Partition) Get(id SegmentID) (Segment, bool) {
	return p.At(p.IndexOf(id))
}

// Clone returns an independent copy, including the id allocator.
func (p *Partition) Clone() *Partition {
	return &Partition{pageCount: p.pageCount, segs: p.Segments(), nextID: p.nextID}
}

var (
	disallowed = regexp.MustCompile(`[^\w\s-]`)
	spaces     = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// SanitizeLabel keeps ASCII word characters, whitespace and hyphens, then
// turns whitespace runs into a hyphen and collapses repeated hyphens.
// "1st Trombone!!" becomes "1st-Trombone".
func SanitizeLabel(label string) string {
	s := disallowed.ReplaceAllString(strings.TrimSpace(label), "")
	s = spaces.ReplaceAllString(s, "-")
	return hyphens.ReplaceAllString(s, "-")
}

// Rename sets the label of segment i to the trimmed label. Labels that
// sanitize to nothing, such as "!!!", and out-of-range indexes are no-ops.
func (p *Partition) Rename(i int, label string) (Change, bool) {
	label = strings.TrimSpace(label)
	if SanitizeLabel(label) == "" || i < 0 || i >= len(p.segs) {
		return Change{}, false
	}
	p.segs[i].Label = label
	return Change{Op: OpRename, Touched: []SegmentID{p.segs[i].ID}}, true
}

// MergeUp folds segment i into segment i-1. The earlier segment keeps its
// label and id. No-op for i == 0 or out of range.
func (p *Partition) MergeUp(i int) (Change, bool) {
	if i <= 0 || i >= len(p.segs) {
		return Change{}, false
	}
	upper, lower := &p.segs[i-1], p.segs[i]
	upper.Pages = concat(upper.Pages, lower.Pages)
	p.segs = append(p.segs[:i], p.segs[i+1:]...)
	return Change{Op: OpMergeUp, Touched: []SegmentID{upper.ID}, Removed: []SegmentID{lower.ID}}, true
}

// MergeDown folds segment i+1 into segment i. The survivor keeps its id but
// adopts the label of the lower segment. No-op for the last segment.
func (p *Partition) MergeDown(i int) (Change, bool) {
	if i < 0 || i >= len(p.segs)-1 {
		return Change{}, false
	}
	upper, lower := &p.segs[i], p.segs[i+1]
	upper.Pages = concat(upper.Pages, lower.Pages)
	upper.Label = lower.Label
	p.segs = append(p.segs[:i+1], p.segs[i+2:]...)
	return Change{Op: OpMergeDown, Touched: []SegmentID{upper.ID}, Removed: []SegmentID{lower.ID}}, true
}

// SplitPages replaces segment i with one single-page segment per page, each
// with the original label and a fresh id. No-op for single-page segments.
func (p *Partition) SplitPages(i int) (Change, bool) {
	if i < 0 || i >= len(p.segs) || len(p.segs[i].Pages) <= 1 {
		return Change{}, false
	}
	orig := p.segs[i]
	parts := make([]Segment, 0, len(orig.Pages))
	ch := Change{Op: OpSplit, Removed: []SegmentID{orig.ID}}
	for _, pg := range orig.Pages {
		s := Segment{ID: p.allocID(), Label: orig.Label, Pages: []int{pg}}
		parts = append(parts, s)
		ch.Touched = append(ch.Touched, s.ID)
	}
	out := make([]Segment, 0, len(p.segs)+len(parts)-1)
	out = append(out, p.segs[:i]...)
	out = append(out, parts...)
	out = append(out, p.segs[i+1:]...)
	p.segs = out
	return ch, true
}

func concat(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
