package transfer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TransferStatus represents the current status of a transfer
type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusInProgress TransferStatus = "in_progress"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusCancelled  TransferStatus = "cancelled"
)

// Task is the kind of work a job descriptor asks for.
type Task string

const (
	TaskUpload   Task = "upload"
	TaskDownload Task = "download"
)

// Job is the descriptor handed to the engine, one per invocation. It is
// passed by value; the engine keeps no state between invocations beyond the
// persisted manifest.
type Job struct {
	ID         string         `json:"id"`
	Task       Task           `json:"task"`
	Filename   string         `json:"filename,omitempty"`
	SourcePath string         `json:"source_path,omitempty"`
	DestDir    string         `json:"dest_dir,omitempty"`
	Status     TransferStatus `json:"status"`
}

// NewJob creates a pending job descriptor with a fresh ID.
func NewJob(task Task) Job {
	return Job{
		ID:     uuid.New().String(),
		Task:   task,
		Status: StatusPending,
	}
}

// Result is the terminal outcome of one job.
type Result struct {
	Status TransferStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Err    error          `json:"-"`
}

func succeeded() Result {
	return Result{Status: StatusCompleted}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Reason: err.Error(), Err: err}
}

func cancelled(err error) Result {
	return Result{Status: StatusCancelled, Reason: err.Error(), Err: err}
}

// ErrIncompleteManifest is returned when a download is attempted against a
// manifest that has not recorded every part.
var ErrIncompleteManifest = errors.New("manifest does not record all parts")

// PartialDownloadError reports how many parts exhausted their retries.
type PartialDownloadError struct {
	FailedParts int
	TotalParts  int
}

func (e *PartialDownloadError) Error() string {
	return fmt.Sprintf("download incomplete: %d of %d parts failed", e.FailedParts, e.TotalParts)
}
