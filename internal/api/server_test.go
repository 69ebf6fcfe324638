package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/imagerender"
	"github.com/local/partkit/internal/limiter"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/local/partkit/internal/session"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type fakeEngine struct {
	pages int
	fail  map[int]bool
}

func (e *fakeEngine) Open(name string, data []byte) (*pdfdoc.Document, error) {
	return pdfdoc.NewDocument(name, data, e.pages), nil
}

func (e *fakeEngine) ExtractPages(_ context.Context, doc *pdfdoc.Document, pages []int) ([]byte, error) {
	for _, p := range pages {
		if e.fail[p] {
			return nil, fmt.Errorf("page %d unreadable", p)
		}
	}
	return []byte(fmt.Sprintf("%s%v", doc.Name(), pages)), nil
}

func (e *fakeEngine) TwoUp(_ context.Context, data []byte) ([]byte, error) {
	return append([]byte("2up:"), data...), nil
}

func (e *fakeEngine) Crop(_ context.Context, data []byte, percent float64) ([]byte, error) {
	return append([]byte(fmt.Sprintf("crop%g:", percent)), data...), nil
}

func (e *fakeEngine) Merge(_ context.Context, parts [][]byte) ([]byte, error) {
	return bytes.Join(parts, []byte("|")), nil
}

type fakeProposer []segment.Proposal

func (p fakeProposer) Propose(context.Context, *pdfdoc.Document) ([]segment.Proposal, error) {
	return p, nil
}

type fakeThumbs struct{ page int }

func (f *fakeThumbs) RenderPage(doc *pdfdoc.Document, page int) (*imagerender.Thumbnail, error) {
	f.page = page
	return &imagerender.Thumbnail{Page: page, Width: 10, Height: 14, JPEG: []byte{0xff, 0xd8, 0xff}}, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, ref string) (string, []byte, error) {
	if ref != "s3://scores/march.pdf" {
		return "", nil, errors.New("not found")
	}
	return "march.pdf", samplePDF, nil
}

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memSink) Emit(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return nil
}

type fixture struct {
	srv    *Server
	engine *fakeEngine
	thumbs *fakeThumbs
	sink   *memSink
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	eng := &fakeEngine{pages: 10, fail: map[int]bool{}}
	props := fakeProposer{
		{Label: "1st Cornet", StartPage: 1, EndPage: 4},
		{Label: "Tuba", StartPage: 5, EndPage: 7},
		{Label: "Percussion", StartPage: 8, EndPage: 10},
	}
	det := filetype.New()
	mgr := session.NewManager(det, eng, props, artifact.NewRegenerator(eng, 16), time.Hour)
	f := &fixture{engine: eng, thumbs: &fakeThumbs{}, sink: &memSink{}}
	f.srv = NewServer(Dependencies{
		Sessions: mgr,
		Engine:   eng,
		Detector: det,
		Fetcher:  fakeFetcher{},
		Thumbs:   f.thumbs,
		Sinks:    map[string]export.Sink{"mem": f.sink},
		APIKey:   apiKey,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(t *testing.T, method, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	return f.do(t, method, path, body, "application/json")
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T) sessionView {
	t.Helper()
	body, ct := multipartBody(t, nil, map[string][]byte{"march.pdf": samplePDF}, "file")
	rec := f.do(t, http.MethodPost, "/api/sessions", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body)
	}
	var resp editResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Session
}

func decodeEdit(t *testing.T, rec *httptest.ResponseRecorder) editResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp editResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "secret")
	if rec := f.do(t, http.MethodGet, "/api/pairings?pages=3", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/pairings?pages=3", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, "")
	view := f.upload(t)

	if view.PageCount != 10 || len(view.Segments) != 3 {
		t.Fatalf("unexpected session: %+v", view)
	}
	if got := view.Segments[0].Filename; got != "march-1st-Cornet.pdf" {
		t.Errorf("filename = %q", got)
	}
	base := "/api/sessions/" + view.ID

	tuba := view.Segments[1].ID
	resp := decodeEdit(t, f.doJSON(t, http.MethodPost, fmt.Sprintf("%s/segments/%d/merge-up", base, tuba), nil))
	if !resp.Changed || len(resp.Session.Segments) != 2 {
		t.Fatalf("merge-up: %+v", resp)
	}
	if got := resp.Session.Segments[0].Range; got != "Pages 1-7" {
		t.Errorf("merged range = %q", got)
	}

	first := resp.Session.Segments[0].ID
	resp = decodeEdit(t, f.doJSON(t, http.MethodPost, fmt.Sprintf("%s/segments/%d/merge-up", base, first), nil))
	if resp.Changed {
		t.Error("merge-up on first segment should be a no-op")
	}

	resp = decodeEdit(t, f.doJSON(t, http.MethodPost, fmt.Sprintf("%s/segments/%d/rename", base, first), renameRequest{Label: "Cornets & Tuba"}))
	if got := resp.Session.Segments[0].Filename; got != "march-Cornets-Tuba.pdf" {
		t.Errorf("renamed filename = %q", got)
	}

	last := resp.Session.Segments[1].ID
	resp = decodeEdit(t, f.doJSON(t, http.MethodPost, fmt.Sprintf("%s/segments/%d/split", base, last), nil))
	if len(resp.Session.Segments) != 4 {
		t.Fatalf("split: %d segments", len(resp.Session.Segments))
	}

	rec := f.doJSON(t, http.MethodPut, base+"/base-name", nameRequest{Name: "Festival March"})
	if rec.Code != http.StatusOK {
		t.Fatalf("base-name: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("%s/segments/%d/download", base, first), nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("download: %d %s", rec.Code, rec.Header())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Festival March-Cornets-Tuba.pdf") {
		t.Errorf("content-disposition = %q", cd)
	}

	rec = f.do(t, http.MethodGet, base+"/archive", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("archive: %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, base, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, base, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestCreateSessionByReference(t *testing.T) {
	f := newFixture(t, "")
	rec := f.doJSON(t, http.MethodPost, "/api/sessions", loadRequest{Ref: "s3://scores/march.pdf", BaseName: "Score"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	rec = f.doJSON(t, http.MethodPost, "/api/sessions", loadRequest{Ref: "s3://scores/missing.pdf"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ref: %d", rec.Code)
	}
}

func TestCreateSessionRefusesLocalPaths(t *testing.T) {
	f := newFixture(t, "")
	f.srv.deps.Fetcher = &pdfdoc.Fetcher{MaxBytes: 1 << 20}
	for _, ref := range []string{"/dev/zero", "file:///etc/hosts"} {
		rec := f.doJSON(t, http.MethodPost, "/api/sessions", loadRequest{Ref: ref})
		if rec.Code != http.StatusForbidden {
			t.Errorf("ref %s: %d %s", ref, rec.Code, rec.Body)
		}
	}
}

func TestCreateSessionRejectsNonPDF(t *testing.T) {
	f := newFixture(t, "")
	body, ct := multipartBody(t, nil, map[string][]byte{"notes.txt": []byte("just some text")}, "file")
	if rec := f.do(t, http.MethodPost, "/api/sessions", body, ct); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d: %s", rec.Code, rec.Body)
	}
}

func TestStaleArtifacts(t *testing.T) {
	f := newFixture(t, "")
	f.engine.fail[6] = true

	body, ct := multipartBody(t, nil, map[string][]byte{"march.pdf": samplePDF}, "file")
	rec := f.do(t, http.MethodPost, "/api/sessions", body, ct)
	var resp editResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.RegenerationErrors) != 1 || !resp.Session.Segments[1].Stale {
		t.Fatalf("expected one stale segment: %+v", resp)
	}
	base := "/api/sessions/" + resp.Session.ID

	rec = f.do(t, http.MethodGet, fmt.Sprintf("%s/segments/%d/download", base, resp.Session.Segments[1].ID), nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("download stale: %d", rec.Code)
	}

	rec = f.doJSON(t, http.MethodPost, base+"/export", exportRequest{Target: "mem"})
	var exp exportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
		t.Fatal(err)
	}
	if len(exp.Emitted) != 2 || len(exp.Skipped) != 1 || len(f.sink.files) != 2 {
		t.Fatalf("export: %+v, sink has %d", exp, len(f.sink.files))
	}

	delete(f.engine.fail, 6)
	retry := decodeEdit(t, f.doJSON(t, http.MethodPost, base+"/retry", nil))
	if len(retry.RegenerationErrors) != 0 || retry.Session.Segments[1].Stale {
		t.Fatalf("retry: %+v", retry)
	}
}

func TestExportUnknownTarget(t *testing.T) {
	f := newFixture(t, "")
	view := f.upload(t)
	rec := f.doJSON(t, http.MethodPost, "/api/sessions/"+view.ID+"/export", exportRequest{Target: "ftp"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestThumbnail(t *testing.T) {
	f := newFixture(t, "")
	view := f.upload(t)
	tuba := view.Segments[1]

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s/segments/%d/thumbnail?page=2", view.ID, tuba.ID), nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("thumbnail: %d", rec.Code)
	}
	if f.thumbs.page != 6 {
		t.Errorf("rendered page %d, want 6", f.thumbs.page)
	}

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s/segments/%d/thumbnail?page=9", view.ID, tuba.ID), nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range: %d", rec.Code)
	}
}

func TestUnknownSegment(t *testing.T) {
	f := newFixture(t, "")
	view := f.upload(t)
	rec := f.doJSON(t, http.MethodPost, "/api/sessions/"+view.ID+"/segments/999/merge-down", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d", rec.Code)
	}
	rec = f.doJSON(t, http.MethodPost, "/api/sessions/"+view.ID+"/segments/abc/merge-down", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPairings(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/api/pairings?pages=5&first_page_alone=true", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var resp struct {
		Pairings [][]int `json:"pairings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(resp.Pairings) != "[[1] [2 3] [4 5]]" {
		t.Errorf("pairings = %v", resp.Pairings)
	}
	if rec := f.do(t, http.MethodGet, "/api/pairings?pages=0", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("pages=0: %d", rec.Code)
	}
}

func TestCombineSingleFile(t *testing.T) {
	f := newFixture(t, "")
	f.engine.pages = 4
	body, ct := multipartBody(t, map[string]string{"first_page_alone": "false"}, map[string][]byte{"march.pdf": samplePDF}, "files")
	rec := f.do(t, http.MethodPost, "/api/combine", body, ct)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("combine: %d %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "march") {
		t.Errorf("content-disposition = %q", cd)
	}
}

func TestCombineSeveralFilesReturnsZip(t *testing.T) {
	f := newFixture(t, "")
	f.engine.pages = 2
	files := map[string][]byte{"a.pdf": samplePDF, "b.pdf": samplePDF}
	body, ct := multipartBody(t, map[string]string{"zip_name": "band"}, files, "files")
	rec := f.do(t, http.MethodPost, "/api/combine", body, ct)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("combine: %d %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "band.zip") {
		t.Errorf("content-disposition = %q", cd)
	}
}

func TestCombineCropPercent(t *testing.T) {
	f := newFixture(t, "")
	f.engine.pages = 2
	body, ct := multipartBody(t, map[string]string{"crop_percent": "12.5"}, map[string][]byte{"march.pdf": samplePDF}, "files")
	rec := f.do(t, http.MethodPost, "/api/combine", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("combine: %d %s", rec.Code, rec.Body)
	}
	if !strings.HasPrefix(rec.Body.String(), "2up:crop12.5:") {
		t.Errorf("body = %q, want cropped pages", rec.Body)
	}

	for _, bad := range []string{"60", "-3", "wide"} {
		body, ct = multipartBody(t, map[string]string{"crop_percent": bad}, map[string][]byte{"march.pdf": samplePDF}, "files")
		if rec := f.do(t, http.MethodPost, "/api/combine", body, ct); rec.Code != http.StatusBadRequest {
			t.Errorf("crop_percent=%s: %d", bad, rec.Code)
		}
	}
}

func TestAssemble(t *testing.T) {
	f := newFixture(t, "")
	f.engine.pages = 1
	files := map[string][]byte{"march-tuba.pdf": samplePDF, "march-cornet.pdf": samplePDF}
	fields := map[string]string{
		"replicas": `{"march-tuba.pdf": 2}`,
		"order":    `["march-tuba.pdf"]`,
	}
	body, ct := multipartBody(t, fields, files, "files")
	rec := f.do(t, http.MethodPost, "/api/assemble", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("assemble: %d %s", rec.Code, rec.Body)
	}
	if got := bytes.Count(rec.Body.Bytes(), []byte("|")); got != 2 {
		t.Errorf("merged %d parts, want 3", got+1)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "march.pdf") {
		t.Errorf("content-disposition = %q", cd)
	}

	body, ct = multipartBody(t, map[string]string{"replicas": `{"nope.pdf": 1}`}, files, "files")
	if rec := f.do(t, http.MethodPost, "/api/assemble", body, ct); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown source: %d", rec.Code)
	}
}

func TestAdmitLimitsHeavyJobs(t *testing.T) {
	f := newFixture(t, "")
	lim := limiter.New(1)
	f.srv.deps.Limiter = lim
	f.srv.setupRoutes()

	release, ok := lim.Allow("combine")
	if !ok {
		t.Fatal("expected a slot")
	}
	body, ct := multipartBody(t, nil, map[string][]byte{"march.pdf": samplePDF}, "files")
	rec := f.do(t, http.MethodPost, "/api/combine", body, ct)
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("saturated combine: %d", rec.Code)
	}

	release()
	body, ct = multipartBody(t, nil, map[string][]byte{"march.pdf": samplePDF}, "files")
	if rec := f.do(t, http.MethodPost, "/api/combine", body, ct); rec.Code != http.StatusOK {
		t.Fatalf("combine after release: %d %s", rec.Code, rec.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", session.ErrBusy), http.StatusConflict},
		{filetype.ErrNotPDF, http.StatusUnsupportedMediaType},
		{fmt.Errorf("unzip: %w", filetype.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{pdfdoc.ErrCropRange, http.StatusBadRequest},
		{segment.ErrInvalidProposal, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
