package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rpattn/stockflow/internal/auth"
	"github.com/rpattn/stockflow/internal/domain"
	"github.com/rpattn/stockflow/internal/fileparse"
	"github.com/rpattn/stockflow/internal/importer"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/google/uuid"
)

// maxUploadBytes caps the multipart upload size.
const maxUploadBytes = 32 << 20

// ImportHandler exposes the import pipeline over HTTP.
type ImportHandler struct {
	service *importer.Service
	logger  *slog.Logger
}

func NewImportHandler(service *importer.Service, logger *slog.Logger) *ImportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{service: service, logger: logger}
}

// Register mounts the import routes on mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports", h.startImport)
	mux.HandleFunc("GET /api/imports", h.listJobs)
	mux.HandleFunc("GET /api/imports/{id}", h.jobStatus)
	mux.HandleFunc("GET /api/imports/{id}/progress", h.jobProgress)
	mux.HandleFunc("GET /api/imports/{id}/logs", h.jobLogs)
	mux.HandleFunc("POST /api/imports/{id}/cancel", h.cancelJob)
	mux.HandleFunc("GET /api/health/cache", h.cacheHealth)
}

func (h *ImportHandler) startImport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := auth.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	entityType := domain.EntityType(r.FormValue("entity_type"))
	opts := importer.ImportOptions{
		AllowPartial:   formBool(r, "allow_partial"),
		ValidateOnly:   formBool(r, "validate_only"),
		AutoCreateRefs: formBool(r, "auto_create_refs"),
	}

	result, err := h.service.StartImport(r.Context(), tenantID, userID, entityType, header.Filename, payload, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *ImportHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := auth.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}

	limit, offset := pagination(r)
	jobs, err := h.service.ListJobs(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *ImportHandler) jobStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, jobID, ok := h.scope(w, r)
	if !ok {
		return
	}
	job, err := h.service.GetJobStatus(r.Context(), tenantID, jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *ImportHandler) jobProgress(w http.ResponseWriter, r *http.Request) {
	tenantID, jobID, ok := h.scope(w, r)
	if !ok {
		return
	}

	progress, metrics, tracked, err := h.service.GetDetailedProgress(r.Context(), tenantID, jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !tracked {
		// Not in memory; fall back to the persisted record.
		job, err := h.service.GetJobStatus(r.Context(), tenantID, jobID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": progress, "metrics": metrics})
}

func (h *ImportHandler) jobLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, jobID, ok := h.scope(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	entries, err := h.service.JobLogs(r.Context(), tenantID, jobID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *ImportHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	tenantID, jobID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelJob(r.Context(), tenantID, jobID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "cancellation requested"})
}

func (h *ImportHandler) cacheHealth(w http.ResponseWriter, r *http.Request) {
	health := h.service.CacheHealth()
	status := http.StatusOK
	if health.Status == importer.CacheHealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h *ImportHandler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := auth.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return uuid.Nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, jobID, true
}

func (h *ImportHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, repository.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, importer.ErrUnsupportedEntityType), errors.Is(err, fileparse.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("import request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func formBool(r *http.Request, field string) bool {
	value, err := strconv.ParseBool(r.FormValue(field))
	return err == nil && value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
