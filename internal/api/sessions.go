package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/segment"
	"github.com/local/partkit/internal/session"
	"github.com/rs/zerolog/log"
)

type loadRequest struct {
	Ref      string `json:"ref"`
	BaseName string `json:"base_name"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type renameRequest struct {
	Label string `json:"label"`
}

type exportRequest struct {
	Target  string `json:"target"`
	Archive bool   `json:"archive"`
}

type exportResponse struct {
	Target  string   `json:"target"`
	Emitted []string `json:"emitted"`
	Skipped []string `json:"skipped"`
}

// handleCreateSession loads a document from a multipart upload ("file") or
// a JSON body naming a reference.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)

	var name, baseName string
	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req loadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Ref == "" {
			jsonError(w, "ref is required", http.StatusBadRequest)
			return
		}
		if s.deps.Fetcher == nil {
			jsonError(w, "loading by reference is disabled", http.StatusBadRequest)
			return
		}
		n, b, err := s.deps.Fetcher.Fetch(r.Context(), req.Ref)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				code = http.StatusBadRequest
			}
			jsonError(w, fmt.Sprintf("fetch %s: %v", req.Ref, err), code)
			return
		}
		name, data, baseName = n, b, req.BaseName
	} else {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "missing 'file' field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		b, err := io.ReadAll(file)
		if err != nil {
			jsonError(w, "failed to read upload", http.StatusBadRequest)
			return
		}
		name, data, baseName = header.Filename, b, r.FormValue("base_name")
	}

	sess, errs, err := s.deps.Sessions.Load(r.Context(), name, data, baseName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, editResponse{
		Changed:            true,
		Session:            viewSnapshot(sess.Snapshot()),
		RegenerationErrors: errorStrings(errs),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func segmentID(w http.ResponseWriter, r *http.Request) (segment.SegmentID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "segmentID"))
	if err != nil {
		jsonError(w, "invalid segment id", http.StatusBadRequest)
		return 0, false
	}
	return segment.SegmentID(n), true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewSnapshot(sess.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBaseName(w http.ResponseWriter, r *http.Request) {
	s.setName(w, r, (*session.Session).SetBaseName)
}

func (s *Server) handleSetArchiveName(w http.ResponseWriter, r *http.Request) {
	s.setName(w, r, (*session.Session).SetArchiveName)
}

func (s *Server) setName(w http.ResponseWriter, r *http.Request, set func(*session.Session, string) (string, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if _, err := set(sess, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSnapshot(sess.Snapshot()))
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.edit(w, r, func(sess *session.Session, ctx context.Context, id segment.SegmentID) (session.Result, error) {
		return sess.Rename(ctx, id, req.Label)
	})
}

func (s *Server) handleMergeUp(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, (*session.Session).MergeUp)
}

func (s *Server) handleMergeDown(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, (*session.Session).MergeDown)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, (*session.Session).SplitPages)
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, apply func(*session.Session, context.Context, segment.SegmentID) (session.Result, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	res, err := apply(sess, r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := editResponse{
		Changed:            res.Changed,
		Session:            viewSnapshot(sess.Snapshot()),
		RegenerationErrors: errorStrings(res.Errors),
	}
	if res.Changed {
		resp.Change = &res.Change
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	errs, err := sess.Retry(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{
		Session:            viewSnapshot(sess.Snapshot()),
		RegenerationErrors: errorStrings(errs),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	if err := export.Single(r.Context(), sess.Snapshot(), id, attachment(w, "application/pdf")); err != nil {
		writeError(w, r, err)
	}
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Thumbs == nil {
		jsonError(w, "thumbnails are disabled", http.StatusNotFound)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	e, err := sess.Snapshot().Find(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page := e.Segment.StartPage()
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > e.Segment.PageCount() {
			jsonError(w, "page out of range", http.StatusBadRequest)
			return
		}
		page = e.Segment.Pages[n-1]
	}
	thumb, err := s.deps.Thumbs.RenderPage(sess.Document(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb.JPEG)))
	w.Header().Set("X-Image-Width", strconv.Itoa(thumb.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(thumb.Height))
	_, _ = w.Write(thumb.JPEG)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, _, err := export.Archive(r.Context(), sess.Snapshot(), attachment(w, "application/zip")); err != nil {
		writeError(w, r, err)
	}
}

// handleExport emits the session's artifacts to a configured sink, one file
// per segment or a single archive.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sink, ok := s.deps.Sinks[req.Target]
	if !ok {
		jsonError(w, fmt.Sprintf("unknown export target %q", req.Target), http.StatusBadRequest)
		return
	}

	snap := sess.Snapshot()
	var rep export.Report
	var err error
	if req.Archive {
		_, rep, err = export.Archive(r.Context(), snap, sink)
	} else {
		rep, err = export.Batch(r.Context(), snap, sink)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("session", snap.SessionID).Str("target", req.Target).
		Int("emitted", len(rep.Emitted)).Int("skipped", len(rep.Skipped)).Msg("export complete")

	emitted := rep.Emitted
	if emitted == nil {
		emitted = []string{}
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Target:  req.Target,
		Emitted: emitted,
		Skipped: errorStrings(rep.Skipped),
	})
}
