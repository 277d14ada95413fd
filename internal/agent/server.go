package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tgvault/tgvault/internal/transfer"
)

// API version and base path
const (
	APIVersion = "v1"
	BasePath   = "/api/" + APIVersion
)

// SubmitJobRequest is the control surface's job descriptor.
type SubmitJobRequest struct {
	Task       transfer.Task `json:"task"`
	Filename   string        `json:"filename,omitempty"`
	SourcePath string        `json:"source_path,omitempty"`
	DestDir    string        `json:"dest_dir,omitempty"`
}

func (req *SubmitJobRequest) Validate() error {
	switch req.Task {
	case transfer.TaskUpload:
		if req.SourcePath == "" {
			return fmt.Errorf("source_path is required for upload jobs")
		}
	case transfer.TaskDownload:
		if req.Filename == "" {
			return fmt.Errorf("filename is required for download jobs")
		}
	default:
		return fmt.Errorf("task must be %q or %q", transfer.TaskUpload, transfer.TaskDownload)
	}
	return nil
}

// SubmitJobResponse acknowledges a queued job.
type SubmitJobResponse struct {
	Job       transfer.Job `json:"job"`
	CreatedAt time.Time    `json:"created_at"`
}

// JobStatusResponse reports the state of one job.
type JobStatusResponse struct {
	JobID  string                  `json:"job_id"`
	Status transfer.TransferStatus `json:"status"`
	Reason string                  `json:"reason,omitempty"`
}

// StoredFile describes one manifest for the listing endpoint.
type StoredFile struct {
	Filename      string `json:"filename"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	TotalParts    int    `json:"total_parts"`
	RecordedParts int    `json:"recorded_parts"`
	Complete      bool   `json:"complete"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// Handler returns the agent's HTTP API.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(BasePath+"/jobs", a.handleJobs)
	mux.HandleFunc(BasePath+"/jobs/", a.handleJobStatus)
	mux.HandleFunc(BasePath+"/files", a.handleListFiles)
	mux.HandleFunc(BasePath+"/progress", a.handleProgress)
	return mux
}

// Serve starts the agent API on the given port.
func (a *Agent) Serve(port int) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: a.Handler(),
	}
	a.logger.Infof("Agent API listening on port %d", port)
	return server.ListenAndServe()
}

// handleJobs handles POST /api/v1/jobs
func (a *Agent) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	job := transfer.NewJob(req.Task)
	job.Filename = req.Filename
	job.SourcePath = req.SourcePath
	job.DestDir = req.DestDir

	if err := a.Submit(job); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSONResponse(w, http.StatusCreated, SubmitJobResponse{Job: job, CreatedAt: time.Now()})
}

// handleJobStatus handles GET /api/v1/jobs/{job_id}
func (a *Agent) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, BasePath+"/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if result, ok := a.Result(jobID); ok {
		writeJSONResponse(w, http.StatusOK, JobStatusResponse{JobID: jobID, Status: result.Status, Reason: result.Reason})
		return
	}
	if job, ok := a.Job(jobID); ok {
		writeJSONResponse(w, http.StatusOK, JobStatusResponse{JobID: jobID, Status: job.Status})
		return
	}

	writeErrorResponse(w, http.StatusNotFound, "Job not found")
}

// handleListFiles handles GET /api/v1/files
func (a *Agent) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	manifests, err := a.manifests.List()
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	files := make([]StoredFile, 0, len(manifests))
	for _, m := range manifests {
		files = append(files, StoredFile{
			Filename:      m.Filename,
			FileSizeBytes: m.FileSizeBytes,
			TotalParts:    m.TotalParts,
			RecordedParts: m.RecordedParts(),
			Complete:      m.Complete(),
		})
	}

	writeJSONResponse(w, http.StatusOK, files)
}

// handleProgress handles GET /api/v1/progress
func (a *Agent) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	all := a.tracker.GetAllProgress()
	entries := make([]transfer.ProgressSnapshot, 0, len(all))
	for _, p := range all {
		entries = append(entries, p.Snapshot())
	}

	writeJSONResponse(w, http.StatusOK, entries)
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: errorMsg,
		Code:    statusCode,
	})
}
