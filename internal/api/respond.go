package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/assemble"
	"github.com/local/partkit/internal/combine"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/segment"
	"github.com/local/partkit/internal/session"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrSegmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, artifact.ErrStale),
		errors.Is(err, export.ErrNothingToExport):
		return http.StatusConflict
	case errors.Is(err, filetype.ErrNotPDF):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, filetype.ErrTooLarge), errors.Is(err, pdfdoc.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pdfdoc.ErrLocalRef):
		return http.StatusForbidden
	case errors.Is(err, filetype.ErrEmpty),
		errors.Is(err, pdfdoc.ErrEmpty),
		errors.Is(err, pdfdoc.ErrCorrupt),
		errors.Is(err, pdfdoc.ErrPageRange),
		errors.Is(err, pdfdoc.ErrCropRange),
		errors.Is(err, segment.ErrInvalidProposal),
		errors.Is(err, combine.ErrBadPairings),
		errors.Is(err, assemble.ErrNoPages),
		errors.Is(err, assemble.ErrUnknownSource):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	jsonError(w, err.Error(), code)
}

// attachment returns a sink that writes one file as the response body.
func attachment(w http.ResponseWriter, contentType string) export.Sink {
	return export.SinkFunc(func(_ context.Context, name string, data []byte) error {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(data)
		return err
	})
}
