package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type errorMapping struct {
	status int
	detail string
}

var errorMappings = map[simplefiles.ErrorKind]errorMapping{
	simplefiles.KindInvalid:        {http.StatusBadRequest, "Invalid filename"},
	simplefiles.KindConfiguration:  {http.StatusBadRequest, "Credentials not available"},
	simplefiles.KindNotFound:       {http.StatusNotFound, "File not found"},
	simplefiles.KindConflict:       {http.StatusConflict, "File already exists"},
	simplefiles.KindPartialFailure: {http.StatusInternalServerError, "Storage update incomplete"},
	simplefiles.KindTransient:      {http.StatusServiceUnavailable, "Storage temporarily unavailable"},
}

// StatusFor returns the HTTP status for err
func StatusFor(err error) int {
	return errorMappings[simplefiles.KindOf(err)].status
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := simplefiles.KindOf(err)
	mapping := errorMappings[kind]

	level := slog.LevelWarn
	if mapping.status >= http.StatusInternalServerError || kind == simplefiles.KindConfiguration {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "Request failed",
		slog.String("path", r.URL.Path),
		slog.String("kind", string(kind)),
		slog.Int("status", mapping.status),
		slog.Any("error", err),
	)

	writeDetail(w, r, mapping.status, mapping.detail)
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail})
}
