// Package session holds one loaded document, its partition and the derived
// artifacts, and serializes edits against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy is returned when an edit arrives while another is in flight.
	ErrBusy = errors.New("session is busy with another edit")
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrSegmentNotFound is returned for segment ids not in the partition.
	ErrSegmentNotFound = errors.New("segment not found")
)

// Result reports the outcome of one edit. Changed is false for boundary
// no-ops; the partition is untouched in that case.
type Result struct {
	Changed bool                          `json:"changed"`
	Change  segment.Change                `json:"change"`
	Errors  []*artifact.RegenerationError `json:"-"`
}

// Session is one editing session over a loaded document.
type Session struct {
	id      string
	created time.Time

	mu          sync.Mutex
	doc         *pdfdoc.Document
	part        *segment.Partition
	artifacts   map[segment.SegmentID]*artifact.Artifact
	baseName    string
	archiveName string
	regen       *artifact.Regenerator

	touchMu  sync.Mutex
	lastUsed time.Time
}

func newSession(id string, doc *pdfdoc.Document, part *segment.Partition, regen *artifact.Regenerator, baseName string, now time.Time) *Session {
	s := &Session{
		id:        id,
		created:   now,
		lastUsed:  now,
		doc:       doc,
		part:      part,
		regen:     regen,
		artifacts: make(map[segment.SegmentID]*artifact.Artifact, part.Len()),
	}
	s.baseName = s.resolveBaseName(baseName)
	return s
}

func (s *Session) ID() string { return s.id }

// Document returns the immutable source document.
func (s *Session) Document() *pdfdoc.Document { return s.doc }

func (s *Session) touch(now time.Time) {
	s.touchMu.Lock()
	s.lastUsed = now
	s.touchMu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.touchMu.Lock()
	defer s.touchMu.Unlock()
	return s.lastUsed
}

// regenerateAll rebuilds every artifact. Called once at load, before the
// session is shared.
func (s *Session) regenerateAll(ctx context.Context) []*artifact.RegenerationError {
	var errs []*artifact.RegenerationError
	for _, seg := range s.part.Segments() {
		if err := s.regenerateOne(ctx, seg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s *Session) regenerateOne(ctx context.Context, seg segment.Segment) *artifact.RegenerationError {
	a, err := s.regen.Refresh(ctx, s.artifacts[seg.ID], seg, s.doc, s.baseName)
	s.artifacts[seg.ID] = a
	if err != nil {
		var rerr *artifact.RegenerationError
		if errors.As(err, &rerr) {
			return rerr
		}
		return &artifact.RegenerationError{SegmentID: seg.ID, Label: seg.Label, Err: err}
	}
	return nil
}

// edit runs one partition operation on the segment with id, then
// regenerates exactly the segments it touched. A regeneration failure leaves
// the edit applied and the failed artifact stale.
func (s *Session) edit(ctx context.Context, op segment.Op, id segment.SegmentID, apply func(i int) (segment.Change, bool)) (Result, error) {
	if !s.mu.TryLock() {
		metrics.IncEdit(string(op), "busy")
		return Result{}, ErrBusy
	}
	defer s.mu.Unlock()

	i := s.part.IndexOf(id)
	if i < 0 {
		metrics.IncEdit(string(op), "error")
		return Result{}, fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
	}
	change, ok := apply(i)
	if !ok {
		metrics.IncEdit(string(op), "noop")
		log.Debug().Str("session", s.id).Str("op", string(op)).Int("segment", int(id)).Msg("edit was a no-op")
		return Result{}, nil
	}

	for _, rid := range change.Removed {
		delete(s.artifacts, rid)
	}
	res := Result{Changed: true, Change: change}
	for _, tid := range change.Touched {
		seg, ok := s.part.Get(tid)
		if !ok {
			continue
		}
		if rerr := s.regenerateOne(ctx, seg); rerr != nil {
			res.Errors = append(res.Errors, rerr)
		}
	}
	result := "applied"
	if len(res.Errors) > 0 {
		result = "regeneration_failed"
	}
	metrics.IncEdit(string(op), result)
	log.Info().Str("session", s.id).Str("op", string(op)).Int("segment", int(id)).
		Int("segments", s.part.Len()).Int("touched", len(change.Touched)).Int("failed", len(res.Errors)).
		Msg("edit applied")
	return res, nil
}

// Rename sets the label of a segment. Labels with no file-name characters
// left after sanitizing are ignored.
func (s *Session) Rename(ctx context.Context, id segment.SegmentID, label string) (Result, error) {
	return s.edit(ctx, segment.OpRename, id, func(i int) (segment.Change, bool) {
		return s.part.Rename(i, label)
	})
}

// MergeUp folds the segment into the one above it, keeping the upper label.
func (s *Session) MergeUp(ctx context.Context, id segment.SegmentID) (Result, error) {
	return s.edit(ctx, segment.OpMergeUp, id, s.part.MergeUp)
}

// MergeDown folds the segment below into this one, adopting the lower label.
func (s *Session) MergeDown(ctx context.Context, id segment.SegmentID) (Result, error) {
	return s.edit(ctx, segment.OpMergeDown, id, s.part.MergeDown)
}

// SplitPages explodes the segment into single-page segments.
func (s *Session) SplitPages(ctx context.Context, id segment.SegmentID) (Result, error) {
	return s.edit(ctx, segment.OpSplit, id, s.part.SplitPages)
}

func (s *Session) resolveBaseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.doc.BaseName()
	}
	return name
}

// SetBaseName changes the filename prefix of every artifact. Blank input
// restores the source document's name. Bytes are not regenerated.
func (s *Session) SetBaseName(name string) (string, error) {
	if !s.mu.TryLock() {
		metrics.IncEdit("base_name", "busy")
		return "", ErrBusy
	}
	defer s.mu.Unlock()

	s.baseName = s.resolveBaseName(name)
	for _, seg := range s.part.Segments() {
		if a, ok := s.artifacts[seg.ID]; ok {
			s.artifacts[seg.ID] = artifact.Rename(a, s.baseName, seg.Label)
		}
	}
	metrics.IncEdit("base_name", "applied")
	return s.baseName, nil
}

// SetArchiveName sets the archive name. Blank input restores the default
// derived from the base name. A trailing .zip is dropped.
func (s *Session) SetArchiveName(name string) (string, error) {
	if !s.mu.TryLock() {
		return "", ErrBusy
	}
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		name = strings.TrimSpace(name[:len(name)-4])
	}
	s.archiveName = name
	return s.archiveNameLocked(), nil
}

func (s *Session) archiveNameLocked() string {
	if s.archiveName != "" {
		return s.archiveName
	}
	return s.baseName + "-all-parts"
}

// Retry regenerates every stale artifact, for example after a transient
// extraction failure.
func (s *Session) Retry(ctx context.Context) ([]*artifact.RegenerationError, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	var errs []*artifact.RegenerationError
	for _, seg := range s.part.Segments() {
		if !s.artifacts[seg.ID].Stale() {
			continue
		}
		if rerr := s.regenerateOne(ctx, seg); rerr != nil {
			errs = append(errs, rerr)
		}
	}
	return errs, nil
}
