package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callaudit/callaudit/internal/api/middleware"
	"github.com/callaudit/callaudit/internal/database/models"
	"github.com/callaudit/callaudit/internal/ingest"
	"github.com/callaudit/callaudit/internal/session"
)

// uploadResponse is the JSON response for a single stored upload.
type uploadResponse struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	SourceFormat string `json:"source_format"`
	RawCallCount int    `json:"raw_call_count"`
	RecordCount  int    `json:"record_count"`
	CreatedAt    string `json:"created_at"`
}

// toUploadResponse converts a models.Upload to the API response.
func toUploadResponse(u *models.Upload) uploadResponse {
	return uploadResponse{
		ID:           u.ID,
		FileName:     u.FileName,
		SourceFormat: u.SourceFormat,
		RawCallCount: u.RawCallCount,
		RecordCount:  u.RecordCount,
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
}

// handleUpload parses an uploaded export file, returns the gap view for the
// selected (or latest) date, and persists the records in the background.
// Persistence failures surface as a warning on a later response, never as a
// failure of this one.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	agencyID := middleware.AgencyFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart file field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading uploaded file failed")
		return
	}

	params, errMsg := s.parseViewParams(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	sess := s.session(agencyID)
	src, err := sess.ParseFile(r.Context(), header.Filename, data)
	if err != nil {
		var unrecognized *ingest.UnrecognizedFormatError
		switch {
		case errors.As(err, &unrecognized):
			writeError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("unrecognized file format: expected one of %s", strings.Join(unrecognized.Known, ", ")))
		case errors.Is(err, session.ErrSuperseded):
			writeError(w, http.StatusConflict, "parse superseded by a newer upload")
		default:
			slog.Error("upload: parse failed", "agency_id", agencyID, "file", header.Filename, "error", err)
			writeError(w, http.StatusBadRequest, "unable to read file")
		}
		return
	}

	// Persistence is fire-and-forget on a background context; the request
	// context dies with this response. Save and view both work from the
	// source this request parsed, so a concurrent upload for the same
	// agency cannot swap its records under this response.
	if _, err := sess.Save(context.Background(), src); err != nil {
		slog.Error("upload: scheduling save failed", "agency_id", agencyID, "error", err)
	}

	view, err := session.ComputeView(src, params.Date, params.Window, params.ThresholdMinutes)
	if err != nil {
		writeViewError(w, header.Filename, view, err)
		return
	}

	writeJSON(w, http.StatusOK, toViewResponse(header.Filename, view))
}

// handleListUploads returns the agency's upload history, newest first.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	agencyID := middleware.AgencyFromContext(r.Context())

	uploads, err := s.store.ListUploads(r.Context(), agencyID)
	if err != nil {
		slog.Error("list uploads: failed to query", "agency_id", agencyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]uploadResponse, len(uploads))
	for i := range uploads {
		items[i] = toUploadResponse(&uploads[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleDeleteUpload removes an upload and its records.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	agencyID := middleware.AgencyFromContext(r.Context())
	id := chi.URLParam(r, "id")

	up, err := s.ownedUpload(r, id)
	if err != nil {
		slog.Error("delete upload: failed to query", "upload_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if up == nil {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}

	if err := s.store.DeleteUpload(r.Context(), id); err != nil {
		slog.Error("delete upload: failed", "upload_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("upload deleted", "agency_id", agencyID, "upload_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// ownedUpload fetches the upload and enforces agency ownership. A missing
// upload and one owned by another agency are indistinguishable to the caller.
func (s *Server) ownedUpload(r *http.Request, id string) (*models.Upload, error) {
	up, err := s.store.GetUpload(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if up == nil || up.AgencyID != middleware.AgencyFromContext(r.Context()) {
		return nil, nil
	}
	return up, nil
}
