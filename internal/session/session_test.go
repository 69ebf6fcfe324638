package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
)

type fakeSniffer struct{}

func (fakeSniffer) RequirePDF(name string, data []byte) error {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return errors.New("not a pdf")
	}
	return nil
}

type fakeOpener struct{ pages int }

func (o fakeOpener) Open(name string, data []byte) (*pdfdoc.Document, error) {
	return pdfdoc.NewDocument(name, data, o.pages), nil
}

type fakeProposer []segment.Proposal

func (p fakeProposer) Propose(context.Context, *pdfdoc.Document) ([]segment.Proposal, error) {
	return p, nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	fail    map[int]bool
	stamp   bool
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeExtractor) ExtractPages(_ context.Context, doc *pdfdoc.Document, pages []int) ([]byte, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, p := range pages {
		if f.fail[p] {
			return nil, fmt.Errorf("page %d unreadable", p)
		}
	}
	if f.stamp {
		return []byte(fmt.Sprintf("%v#%d", pages, f.calls)), nil
	}
	return []byte(fmt.Sprint(pages)), nil
}

var abc = fakeProposer{
	{Label: "A", StartPage: 1, EndPage: 4},
	{Label: "B", StartPage: 5, EndPage: 7},
	{Label: "C", StartPage: 8, EndPage: 10},
}

func newTestManager(ex *fakeExtractor, props fakeProposer) *Manager {
	return NewManager(fakeSniffer{}, fakeOpener{pages: 10}, props, artifact.NewRegenerator(ex, 64), time.Hour)
}

func labels(snap *Snapshot) []string {
	out := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		out[i] = fmt.Sprintf("%s:%s", e.Segment.Label, e.Segment.RangeLabel())
	}
	return out
}

func TestLoadAndEdit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeExtractor{}, abc)
	s, errs, err := m.Load(ctx, "Band Book.pdf", []byte("%PDF-book"), "")
	if err != nil || len(errs) != 0 {
		t.Fatalf("load: %v %v", err, errs)
	}
	snap := s.Snapshot()
	if snap.BaseName != "Band Book" || snap.ArchiveName != "Band Book-all-parts" {
		t.Errorf("names = %q, %q", snap.BaseName, snap.ArchiveName)
	}
	if got := snap.Entries[0].Artifact.Filename; got != "Band Book-A.pdf" {
		t.Errorf("filename = %q", got)
	}

	idA := snap.Entries[0].Segment.ID
	idC := snap.Entries[2].Segment.ID
	res, err := s.MergeDown(ctx, idA)
	if err != nil || !res.Changed {
		t.Fatalf("merge down: %+v %v", res, err)
	}
	res, err = s.SplitPages(ctx, idC)
	if err != nil || !res.Changed || len(res.Change.Touched) != 3 {
		t.Fatalf("split: %+v %v", res, err)
	}

	snap = s.Snapshot()
	want := []string{"B:Pages 1-7", "C:Page 8", "C:Page 9", "C:Page 10"}
	if got := labels(snap); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if snap.Entries[0].Segment.ID != idA {
		t.Errorf("merge down survivor id = %d, want %d", snap.Entries[0].Segment.ID, idA)
	}
	for _, e := range snap.Entries {
		if e.Artifact == nil || e.Artifact.Stale() || e.Artifact.SegmentID != e.Segment.ID {
			t.Fatalf("artifact for %v = %+v", e.Segment, e.Artifact)
		}
		if string(e.Artifact.Bytes) != fmt.Sprint(e.Segment.Pages) {
			t.Errorf("artifact bytes %q for pages %v", e.Artifact.Bytes, e.Segment.Pages)
		}
	}
	if _, err := s.MergeUp(ctx, idC); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("retired id: %v", err)
	}
}

func TestRenameKeepsBytesAfterEviction(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{stamp: true}
	m := NewManager(fakeSniffer{}, fakeOpener{pages: 10}, abc, artifact.NewRegenerator(ex, 1), time.Hour)
	s, _, err := m.Load(ctx, "march.pdf", []byte("%PDF-march"), "")
	if err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot().Entries[0]
	calls := ex.calls

	if _, err := s.Rename(ctx, before.Segment.ID, "Solo Cornet"); err != nil {
		t.Fatal(err)
	}
	after := s.Snapshot().Entries[0]
	if !bytes.Equal(after.Artifact.Bytes, before.Artifact.Bytes) {
		t.Errorf("rename changed bytes: %q -> %q", before.Artifact.Bytes, after.Artifact.Bytes)
	}
	if after.Artifact.Filename != "march-Solo-Cornet.pdf" {
		t.Errorf("filename = %q", after.Artifact.Filename)
	}
	if ex.calls != calls {
		t.Errorf("rename re-extracted: %d calls, want %d", ex.calls, calls)
	}
}

func TestBoundaryNoops(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeExtractor{}, abc)
	s, _, err := m.Load(ctx, "b.pdf", []byte("%PDF"), "")
	if err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	first, last := before.Entries[0].Segment.ID, before.Entries[2].Segment.ID

	for name, fn := range map[string]func() (Result, error){
		"merge up first":   func() (Result, error) { return s.MergeUp(ctx, first) },
		"merge down last":  func() (Result, error) { return s.MergeDown(ctx, last) },
		"rename blank":     func() (Result, error) { return s.Rename(ctx, first, "   ") },
	} {
		res, err := fn()
		if err != nil || res.Changed {
			t.Errorf("%s: %+v %v", name, res, err)
		}
	}
	if fmt.Sprint(labels(s.Snapshot())) != fmt.Sprint(labels(before)) {
		t.Errorf("partition changed by no-ops")
	}
}

func TestNames(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeExtractor{}, abc)
	s, _, err := m.Load(ctx, "dir/Crimond.PDF", []byte("%PDF"), "  ")
	if err != nil {
		t.Fatal(err)
	}
	old := s.Snapshot()

	if got, _ := s.SetBaseName("Crimond 2024"); got != "Crimond 2024" {
		t.Errorf("base = %q", got)
	}
	snap := s.Snapshot()
	if snap.Entries[1].Artifact.Filename != "Crimond 2024-B.pdf" {
		t.Errorf("filename = %q", snap.Entries[1].Artifact.Filename)
	}
	if !bytes.Equal(snap.Entries[1].Artifact.Bytes, old.Entries[1].Artifact.Bytes) {
		t.Errorf("base name change altered bytes")
	}
	if snap.ArchiveName != "Crimond 2024-all-parts" {
		t.Errorf("archive = %q", snap.ArchiveName)
	}
	if got, _ := s.SetArchiveName("band set.zip"); got != "band set" {
		t.Errorf("archive = %q", got)
	}
	if got, _ := s.SetBaseName(""); got != "Crimond" {
		t.Errorf("blank base = %q", got)
	}
	if got, _ := s.SetArchiveName(" "); got != "Crimond-all-parts" {
		t.Errorf("reset archive = %q", got)
	}
}

func TestRegenerationFailureIsolated(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{fail: map[int]bool{9: true}}
	m := newTestManager(ex, abc)
	s, errs, err := m.Load(ctx, "b.pdf", []byte("%PDF"), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || errs[0].Label != "C" {
		t.Fatalf("errs = %v", errs)
	}
	snap := s.Snapshot()
	if snap.Entries[0].Artifact.Stale() || snap.Entries[1].Artifact.Stale() || !snap.Entries[2].Artifact.Stale() {
		t.Fatalf("staleness wrong")
	}

	// splitting C isolates the one bad page
	res, err := s.SplitPages(ctx, snap.Entries[2].Segment.ID)
	if err != nil || !res.Changed || len(res.Errors) != 1 {
		t.Fatalf("split: %+v %v", res, err)
	}
	snap = s.Snapshot()
	if len(snap.Entries) != 5 || !snap.Entries[3].Artifact.Stale() || snap.Entries[4].Artifact.Stale() {
		t.Errorf("after split: %v", labels(snap))
	}

	ex.mu.Lock()
	ex.fail = nil
	ex.mu.Unlock()
	if errs, err := s.Retry(ctx); err != nil || len(errs) != 0 {
		t.Fatalf("retry: %v %v", errs, err)
	}
	for _, e := range s.Snapshot().Entries {
		if e.Artifact.Stale() {
			t.Errorf("%s still stale", e.Segment.RangeLabel())
		}
	}
}

func TestLoadRejects(t *testing.T) {
	ctx := context.Background()
	gap := fakeProposer{{Label: "A", StartPage: 1, EndPage: 4}, {Label: "B", StartPage: 6, EndPage: 10}}
	m := newTestManager(&fakeExtractor{}, gap)
	if _, _, err := m.Load(ctx, "b.pdf", []byte("%PDF"), ""); !errors.Is(err, segment.ErrInvalidProposal) {
		t.Errorf("gap: %v", err)
	}
	if _, _, err := m.Load(ctx, "b.txt", []byte("hello"), ""); err == nil {
		t.Errorf("non-pdf accepted")
	}
	if m.Len() != 0 {
		t.Errorf("failed loads left %d sessions", m.Len())
	}
}

func TestBusy(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{}
	m := newTestManager(ex, abc)
	s, _, err := m.Load(ctx, "b.pdf", []byte("%PDF"), "")
	if err != nil {
		t.Fatal(err)
	}
	ids := s.Snapshot().Entries

	ex.gate = make(chan struct{})
	ex.started = make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		_, err := s.SplitPages(ctx, ids[0].Segment.ID)
		done <- err
	}()
	<-ex.started

	if _, err := s.Rename(ctx, ids[1].Segment.ID, "X"); !errors.Is(err, ErrBusy) {
		t.Errorf("rename during split: %v", err)
	}
	if _, err := s.SetBaseName("x"); !errors.Is(err, ErrBusy) {
		t.Errorf("base name during split: %v", err)
	}
	close(ex.gate)
	if err := <-done; err != nil {
		t.Fatalf("split: %v", err)
	}
	if n := len(s.Snapshot().Entries); n != 6 {
		t.Errorf("segments after split = %d", n)
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeExtractor{}, abc)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	a, _, _ := m.Load(ctx, "a.pdf", []byte("%PDF-a"), "")
	b, _, _ := m.Load(ctx, "b.pdf", []byte("%PDF-b"), "")

	now = now.Add(50 * time.Minute)
	if _, err := m.Get(b.ID()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(20 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Errorf("swept %d", n)
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: %v", err)
	}
	if err := m.Delete(b.ID()); err != nil {
		t.Errorf("delete: %v", err)
	}
	if err := m.Delete(b.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}
