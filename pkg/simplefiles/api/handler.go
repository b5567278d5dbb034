package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// copyBufferSize bounds the memory held per in-flight download
const copyBufferSize = 32 * 1024

// Handler serves the file gateway endpoints
type Handler struct {
	service simplefiles.Service
	logger  *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(service simplefiles.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the router for the gateway endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ping", h.Ping)
	r.Get("/healthz", h.Healthz)
	r.Get("/healthz/ready", h.Healthz)
	r.Post("/upload", h.Upload)
	r.Get("/download/{filename}", h.Download)
	r.Delete("/delete/{filename}", h.Delete)
	r.Get("/files", h.List)
	r.Get("/files/{file_id}", h.Stat)
	r.Delete("/files/{file_id}", h.CompleteDelete)
	return r
}

// UploadResponse is returned by POST /upload
type UploadResponse struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id"`
}

// DeleteResponse is returned by DELETE /delete/{filename}
type DeleteResponse struct {
	Deleted string `json:"deleted"`
}

// ListResponse is returned by GET /files
type ListResponse struct {
	Files []*simplefiles.FileRecord `json:"files"`
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, "pong")
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, http.StatusText(http.StatusOK))
}

// Upload streams the multipart field "file" into the service without
// buffering the whole body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeDetail(w, r, http.StatusBadRequest, "Expected multipart/form-data body")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logger.WarnContext(r.Context(), "Failed to read multipart body", "error", err)
			writeDetail(w, r, http.StatusBadRequest, "Malformed multipart body")
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		filename := part.FileName()
		if filename == "" {
			part.Close()
			writeDetail(w, r, http.StatusBadRequest, "Invalid filename")
			return
		}

		size := int64(-1)
		if v := part.Header.Get("Content-Length"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				size = n
			}
		}

		record, err := h.service.Upload(r.Context(), simplefiles.UploadRequest{
			Filename:    filename,
			ContentType: part.Header.Get("Content-Type"),
			Size:        size,
			Reader:      part,
		})
		part.Close()
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		render.JSON(w, r, UploadResponse{Filename: record.Filename, FileID: record.FileID})
		return
	}

	writeDetail(w, r, http.StatusBadRequest, "No file provided")
}

// Download streams the object. Once headers are sent a copy failure can only
// be logged; the client sees a truncated body.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	filename, ok := h.filenameParam(w, r)
	if !ok {
		return
	}

	download, err := h.service.Download(r.Context(), simplefiles.DownloadRequest{
		Filename:         filename,
		RequesterAddress: requesterAddress(r),
		UserAgent:        r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer download.Body.Close()

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}))
	if download.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, copyBufferSize)
	if n, err := io.CopyBuffer(w, download.Body, buf); err != nil {
		h.logger.WarnContext(r.Context(), "Download interrupted",
			"filename", filename,
			"bytes", n,
			"error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	filename, ok := h.filenameParam(w, r)
	if !ok {
		return
	}

	record, err := h.service.Delete(r.Context(), filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, DeleteResponse{Deleted: record.Filename})
}

// CompleteDelete tombstones a record whose blob a failed Delete already removed
func (h *Handler) CompleteDelete(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.CompleteDelete(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, DeleteResponse{Deleted: record.Filename})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []*simplefiles.FileRecord{}
	}

	render.JSON(w, r, ListResponse{Files: files})
}

func (h *Handler) Stat(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Stat(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, record)
}

// filenameParam returns the decoded {filename} route parameter. chi matches
// on RawPath when the request has one, leaving the parameter escaped.
func (h *Handler) filenameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	filename := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return filename, true
	}
	filename, err := url.PathUnescape(filename)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", simplefiles.ErrInvalidFilename, err))
		return "", false
	}
	return filename, true
}

// requesterAddress returns the client IP. middleware.RealIP may already have
// replaced RemoteAddr with a bare IP.
func requesterAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}
	return ""
}
