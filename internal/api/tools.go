package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/local/partkit/internal/assemble"
	"github.com/local/partkit/internal/combine"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/pdfdoc"
)

// handlePairings previews the 2-up pairings for a page count.
func (s *Server) handlePairings(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("pages"))
	if err != nil || n < 1 {
		jsonError(w, "pages must be a positive integer", http.StatusBadRequest)
		return
	}
	firstAlone, _ := strconv.ParseBool(r.URL.Query().Get("first_page_alone"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pages":    n,
		"pairings": combine.Pairings(n, firstAlone),
	})
}

// handleCombine 2-ups every uploaded PDF. One output is returned as a PDF,
// several as a zip. "crop_percent" trims each page edge before layout.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	uploads, ok := s.uploads(w, r)
	if !ok {
		return
	}
	firstAlone, _ := strconv.ParseBool(r.FormValue("first_page_alone"))
	var crop float64
	if raw := r.FormValue("crop_percent"); raw != "" {
		var err error
		if crop, err = strconv.ParseFloat(raw, 64); err != nil {
			jsonError(w, "crop_percent must be a number", http.StatusBadRequest)
			return
		}
	}
	res, err := combine.Files(r.Context(), s.deps.Engine, s.deps.Engine, s.deps.Detector, uploads, combine.Options{
		FirstPageAlone: firstAlone,
		ZipName:        r.FormValue("zip_name"),
		CropPercent:    crop,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(res.Files) == 0 {
		jsonError(w, "no PDF files found in upload", http.StatusBadRequest)
		return
	}
	if len(res.Files) == 1 {
		f := res.Files[0]
		_ = attachment(w, "application/pdf").Emit(r.Context(), f.Name, f.Data)
		return
	}
	entries := make([]export.Entry, len(res.Files))
	for i, f := range res.Files {
		entries[i] = export.Entry{Name: f.Name, Data: f.Data}
	}
	data, err := export.Pack(entries)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = attachment(w, "application/zip").Emit(r.Context(), res.ZipName, data)
}

// handleAssemble concatenates uploaded PDFs. Optional form fields:
// "replicas" (JSON object name->count), "order" (JSON array of names) and
// "name" (output file name).
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	uploads, ok := s.uploads(w, r)
	if !ok {
		return
	}

	var docs []*pdfdoc.Document
	var names []string
	for _, up := range uploads {
		pdfs, err := s.deps.Detector.ExpandPDFs(up)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, f := range pdfs {
			doc, err := s.deps.Engine.Open(f.Name, f.Data)
			if err != nil {
				writeError(w, r, fmt.Errorf("open %s: %w", f.Name, err))
				return
			}
			docs = append(docs, doc)
			names = append(names, f.Name)
		}
	}
	if len(docs) == 0 {
		jsonError(w, "no PDF files found in upload", http.StatusBadRequest)
		return
	}

	plan := assemble.NewPlan(docs)
	if raw := r.FormValue("order"); raw != "" {
		var order []string
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			jsonError(w, "order must be a JSON array of names", http.StatusBadRequest)
			return
		}
		if err := plan.Reorder(order); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if raw := r.FormValue("replicas"); raw != "" {
		var replicas map[string]int
		if err := json.Unmarshal([]byte(raw), &replicas); err != nil {
			jsonError(w, "replicas must be a JSON object of name to count", http.StatusBadRequest)
			return
		}
		for name, n := range replicas {
			if err := plan.SetReplicasByName(name, n); err != nil {
				writeError(w, r, err)
				return
			}
		}
	}

	out, err := plan.Assemble(r.Context(), s.deps.Engine)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = attachment(w, "application/pdf").Emit(r.Context(), assemble.OutputName(r.FormValue("name"), names), out)
}

// uploads reads every file part of a multipart request.
func (s *Server) uploads(w http.ResponseWriter, r *http.Request) ([]filetype.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form", http.StatusBadRequest)
		return nil, false
	}
	var files []filetype.File
	for _, field := range []string{"files", "file"} {
		for _, fh := range r.MultipartForm.File[field] {
			f, err := fh.Open()
			if err != nil {
				jsonError(w, "failed to read upload", http.StatusBadRequest)
				return nil, false
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				jsonError(w, "failed to read upload", http.StatusBadRequest)
				return nil, false
			}
			files = append(files, filetype.File{Name: fh.Filename, Data: data})
		}
	}
	if len(files) == 0 {
		jsonError(w, "missing 'files' field", http.StatusBadRequest)
		return nil, false
	}
	return files, true
}
