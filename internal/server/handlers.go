package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/tempo/internal/export"
	"github.com/maauso/tempo/internal/job"
	"github.com/maauso/tempo/internal/planner"
)

// defaultMaxUploadBytes caps multipart uploads.
const defaultMaxUploadBytes = 4 << 30

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ExportService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxUploadBytes     int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateExport only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxUploadBytes limits the size of multipart uploads.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ExportService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		maxUploadBytes:     defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateExport handles POST /exports requests. The body is either JSON with
// input_path or multipart/form-data with a "file" part.
func (h *Handlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		req       CreateExportRequest
		tempInput bool
	)
	if mediaType == "multipart/form-data" {
		var ok bool
		req, ok = h.readUpload(w, r)
		if !ok {
			return
		}
		tempInput = true
	} else {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return
		}
		req.Resolution = strings.ToLower(req.Resolution)
		if err := h.validator.Struct(req); err != nil {
			h.logger.Warn("request validation failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
	}

	input := job.CreateExportInput{
		InputPath:  req.InputPath,
		TempInput:  tempInput,
		Speed:      req.Speed,
		Resolution: req.Resolution,
		PushToS3:   req.PushToS3,
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		if tempInput {
			_ = h.service.RemoveUpload(context.WithoutCancel(r.Context()), req.InputPath)
		}
		if errors.Is(err, planner.ErrInvalidSpeedFactor) || errors.Is(err, planner.ErrInvalidResolution) {
			writeError(w, http.StatusBadRequest, export.Message(err), "VALIDATION_ERROR")
			return
		}
		if errors.Is(err, job.ErrInputNotAllowed) {
			h.logger.Warn("rejected input path", slog.String("input", req.InputPath))
			writeError(w, http.StatusBadRequest, "input_path is outside the allowed directories", "INPUT_NOT_ALLOWED")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, processErr := h.service.ProcessJob(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("export created",
		slog.String("job_id", createdJob.ID),
		slog.Float64("speed", req.Speed),
		slog.String("resolution", createdJob.Resolution),
		slog.Bool("upload", tempInput),
	)

	writeJSON(w, http.StatusAccepted, CreateExportResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// readUpload validates the form fields of a multipart request and saves its
// file part. It writes the error response itself and reports false on failure.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (CreateExportRequest, bool) {
	var req CreateExportRequest

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.logger.Warn("failed to parse multipart form", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_FORM")
		return req, false
	}

	if v := r.FormValue("speed"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "speed must be a number", "VALIDATION_ERROR")
			return req, false
		}
		req.Speed = speed
	}
	if _, ok := r.MultipartForm.Value["output_path"]; ok {
		writeError(w, http.StatusBadRequest, "output_path is not supported", "VALIDATION_ERROR")
		return req, false
	}
	req.Resolution = strings.ToLower(r.FormValue("resolution"))
	req.PushToS3, _ = strconv.ParseBool(r.FormValue("push_to_s3"))

	if err := h.validator.StructExcept(req, "InputPath"); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return req, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "MISSING_FILE")
		return req, false
	}
	defer file.Close()

	path, err := h.service.SaveUpload(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to save upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save upload", "UPLOAD_FAILED")
		return req, false
	}
	req.InputPath = path
	return req, true
}

// ListExports handles GET /exports requests.
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetExport handles GET /exports/{id} requests.
func (h *Handlers) GetExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobError(w, jobID, "failed to get job", err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// CancelExport handles POST /exports/{id}/cancel requests.
func (h *Handlers) CancelExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "job already finished", "JOB_NOT_CANCELLABLE")
			return
		}
		h.jobError(w, jobID, "failed to cancel job", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(cancelled))
}

// GetExportVideo handles GET /exports/{id}/video requests. Exports pushed to
// S3 redirect to the object URL; others are served from disk.
func (h *Handlers) GetExportVideo(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobError(w, jobID, "failed to get job", err)
		return
	}
	if foundJob.GetStatus() == job.StatusCompleted && foundJob.VideoURL != "" {
		http.Redirect(w, r, foundJob.VideoURL, http.StatusFound)
		return
	}

	rc, foundJob, err := h.service.OpenOutput(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrOutputUnavailable) {
			writeError(w, http.StatusConflict, "export output is not available", "OUTPUT_UNAVAILABLE")
			return
		}
		h.jobError(w, jobID, "failed to open output", err)
		return
	}
	defer rc.Close()

	name := filepath.Base(foundJob.OutputPath)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, foundJob.CompletedAt, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream output",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteExport handles DELETE /exports/{id} requests.
func (h *Handlers) DeleteExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobActive) {
			writeError(w, http.StatusConflict, "job is still active", "JOB_ACTIVE")
			return
		}
		h.jobError(w, jobID, "failed to delete job", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// jobError writes 404 for unknown jobs and 500 otherwise.
func (h *Handlers) jobError(w http.ResponseWriter, jobID, msg string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error(msg,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	return jobID, true
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		Error:          j.Error,
		InputPath:      j.InputPath,
		Speed:          j.Speed,
		SpeedLabel:     planner.SpeedFactor(j.Speed).Label(),
		Resolution:     j.Resolution,
		RenderWidth:    j.RenderWidth,
		RenderHeight:   j.RenderHeight,
		OutputDuration: j.OutputDuration,
		VideoURL:       j.VideoURL,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
