// Package export hands artifacts to sinks: one at a time, all in partition
// order, or packed into a single archive.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/segment"
	"github.com/local/partkit/internal/session"
	"github.com/rs/zerolog/log"
)

// ErrNothingToExport is returned when every artifact is stale.
var ErrNothingToExport = errors.New("no exportable artifacts")

// Sink receives exported files.
type Sink interface {
	Emit(ctx context.Context, name string, data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, name string, data []byte) error

func (f SinkFunc) Emit(ctx context.Context, name string, data []byte) error { return f(ctx, name, data) }

// Report lists what an export emitted and what it skipped.
type Report struct {
	Emitted []string                      `json:"emitted"`
	Skipped []*artifact.RegenerationError `json:"-"`
}

// Single emits the artifact of one segment.
func Single(ctx context.Context, snap *session.Snapshot, id segment.SegmentID, sink Sink) (err error) {
	defer func() { metrics.IncExport("single", err) }()

	e, err := snap.Find(id)
	if err != nil {
		return err
	}
	if e.Artifact.Stale() {
		return staleError(e)
	}
	return sink.Emit(ctx, e.Artifact.Filename, e.Artifact.Bytes)
}

// Batch emits every current artifact in partition order. Stale artifacts
// are skipped and reported. Filenames are not deduplicated. A sink failure
// stops the batch; the snapshot is untouched so the export can be retried.
func Batch(ctx context.Context, snap *session.Snapshot, sink Sink) (rep Report, err error) {
	defer func() { metrics.IncExport("batch", err) }()

	for _, e := range snap.Entries {
		if e.Artifact.Stale() {
			rep.Skipped = append(rep.Skipped, staleError(e))
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := sink.Emit(ctx, e.Artifact.Filename, e.Artifact.Bytes); err != nil {
			return rep, fmt.Errorf("emit %s: %w", e.Artifact.Filename, err)
		}
		rep.Emitted = append(rep.Emitted, e.Artifact.Filename)
	}
	if len(rep.Emitted) == 0 {
		return rep, ErrNothingToExport
	}
	log.Info().Str("session", snap.SessionID).Int("emitted", len(rep.Emitted)).Int("skipped", len(rep.Skipped)).Msg("batch export done")
	return rep, nil
}

// Archive packs every current artifact into one zip named after the
// snapshot's archive name and emits it.
func Archive(ctx context.Context, snap *session.Snapshot, sink Sink) (name string, rep Report, err error) {
	defer func() { metrics.IncExport("archive", err) }()

	var entries []Entry
	for _, e := range snap.Entries {
		if e.Artifact.Stale() {
			rep.Skipped = append(rep.Skipped, staleError(e))
			continue
		}
		entries = append(entries, Entry{Name: e.Artifact.Filename, Data: e.Artifact.Bytes})
		rep.Emitted = append(rep.Emitted, e.Artifact.Filename)
	}
	if len(entries) == 0 {
		return "", rep, ErrNothingToExport
	}
	data, err := Pack(entries)
	if err != nil {
		return "", rep, err
	}
	name = snap.ArchiveName + ".zip"
	if err := sink.Emit(ctx, name, data); err != nil {
		return "", rep, fmt.Errorf("emit %s: %w", name, err)
	}
	log.Info().Str("session", snap.SessionID).Str("archive", name).Int("entries", len(entries)).Int("size", len(data)).Msg("archive export done")
	return name, rep, nil
}

func staleError(e session.Entry) *artifact.RegenerationError {
	cause := artifact.ErrStale
	if e.Artifact != nil && e.Artifact.Err != nil {
		cause = fmt.Errorf("%w: %v", artifact.ErrStale, e.Artifact.Err)
	}
	return &artifact.RegenerationError{SegmentID: e.Segment.ID, Label: e.Segment.Label, Err: cause}
}
