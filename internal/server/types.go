// Package server provides the HTTP API for tempo exports.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateExportRequest is the HTTP request body for creating an export.
// Multipart requests carry the same fields as form values plus a "file" part
// instead of input_path. The output location is always chosen by the server.
type CreateExportRequest struct {
	// InputPath is a source video under one of the server's INPUT_DIRS.
	InputPath string `json:"input_path" validate:"required"`
	// Speed is the playback rate multiplier.
	Speed float64 `json:"speed" validate:"required,gte=0.1,lte=4"`
	// Resolution is original, 480p, 720p or 1080p in any case. Empty means
	// original.
	Resolution string `json:"resolution" validate:"omitempty,oneof=original 480p 720p 1080p"`
	// PushToS3 indicates whether to upload the finished export to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateExportResponse is the HTTP response after creating an export.
type CreateExportResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting export details.
type JobResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	Error          string    `json:"error,omitempty"`
	InputPath      string    `json:"input_path"`
	Speed          float64   `json:"speed"`
	SpeedLabel     string    `json:"speed_label"`
	Resolution     string    `json:"resolution"`
	RenderWidth    int       `json:"render_width,omitempty"`
	RenderHeight   int       `json:"render_height,omitempty"`
	OutputDuration float64   `json:"output_duration,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
}

// ListJobsResponse is the HTTP response for listing exports.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
