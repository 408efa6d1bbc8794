package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// ArchiveHandler exposes the settlement archive: triggering a run and
// listing what has been archived so far.
type ArchiveHandler struct {
	archiver domain.Archiver
	reader   domain.BlobReader
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. Both collaborators may be nil
// when object storage is not configured; the endpoints then report 503.
func NewArchiveHandler(archiver domain.Archiver, reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		reader:   reader,
		logger:   logHandler(logger, "archive"),
	}
}

type runArchiveRequest struct {
	// Before bounds the archive run; markets resolved before this instant
	// are included. Defaults to now.
	Before *time.Time `json:"before"`
}

// Run triggers an archive pass over settled markets.
// POST /api/archive/run
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}

	var req runArchiveRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	before := time.Now().UTC()
	if req.Before != nil {
		before = *req.Before
	}

	count, err := h.archiver.ArchiveSettled(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive run failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archived": count,
		"before":   before.Format(time.RFC3339),
	})
}

type archiveInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List enumerates the archive files written so far.
// GET /api/archives
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}

	infos, err := h.reader.List(r.Context(), "archive/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive list failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	out := make([]archiveInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveInfo{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}
