package session

import (
	"fmt"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/segment"
)

// Entry pairs a segment with its current artifact.
type Entry struct {
	Segment  segment.Segment
	Artifact *artifact.Artifact
}

// Snapshot is a consistent, read-only copy of a session taken between edits.
type Snapshot struct {
	SessionID   string
	Source      string
	PageCount   int
	BaseName    string
	ArchiveName string
	Entries     []Entry
}

// Snapshot copies the partition order and artifact set. It waits for an
// in-flight edit to finish.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := s.part.Segments()
	snap := &Snapshot{
		SessionID:   s.id,
		Source:      s.doc.Name(),
		PageCount:   s.doc.PageCount(),
		BaseName:    s.baseName,
		ArchiveName: s.archiveNameLocked(),
		Entries:     make([]Entry, len(segs)),
	}
	for i, seg := range segs {
		snap.Entries[i] = Entry{Segment: seg, Artifact: s.artifacts[seg.ID]}
	}
	return snap
}

// Find returns the entry for id.
func (snap *Snapshot) Find(id segment.SegmentID) (Entry, error) {
	for _, e := range snap.Entries {
		if e.Segment.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
}

// Artifacts returns the artifacts in partition order, stale ones included.
func (snap *Snapshot) Artifacts() []*artifact.Artifact {
	out := make([]*artifact.Artifact, len(snap.Entries))
	for i, e := range snap.Entries {
		out[i] = e.Artifact
	}
	return out
}
