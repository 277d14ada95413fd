package transfer

import (
	"fmt"
	"sync"
	"time"
)

// Tracker tracks the progress of active transfers for the agent API and CLI.
type Tracker struct {
	transfers map[string]*Progress
	mu        sync.RWMutex
}

// Progress represents the progress of a single transfer
type Progress struct {
	JobID          string
	FileName       string
	Task           Task
	Status         TransferStatus
	PartsDone      int
	TotalParts     int
	BytesDone      int64
	TotalBytes     int64
	StartTime      time.Time
	LastUpdateTime time.Time
	Speed          float64 // bytes per second
	EstimatedTime  time.Duration
	mu             sync.RWMutex
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		transfers: make(map[string]*Progress),
	}
}

// StartTracking starts tracking a new transfer
func (t *Tracker) StartTracking(jobID, fileName string, task Task, totalParts int, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transfers[jobID] = &Progress{
		JobID:          jobID,
		FileName:       fileName,
		Task:           task,
		Status:         StatusPending,
		TotalParts:     totalParts,
		TotalBytes:     totalBytes,
		StartTime:      time.Now(),
		LastUpdateTime: time.Now(),
	}
}

// UpdateProgress updates the progress of a transfer
func (t *Tracker) UpdateProgress(jobID string, partsDone int, bytesDone int64, status TransferStatus) {
	t.mu.RLock()
	progress, exists := t.transfers[jobID]
	t.mu.RUnlock()

	if !exists {
		return
	}

	progress.mu.Lock()
	defer progress.mu.Unlock()

	now := time.Now()
	progress.PartsDone = partsDone
	progress.BytesDone = bytesDone
	progress.Status = status
	progress.LastUpdateTime = now

	if !progress.StartTime.IsZero() {
		elapsed := now.Sub(progress.StartTime).Seconds()
		if elapsed > 0 {
			progress.Speed = float64(bytesDone) / elapsed
		}
	}

	if progress.Speed > 0 && progress.TotalBytes > bytesDone {
		remainingBytes := progress.TotalBytes - bytesDone
		progress.EstimatedTime = time.Duration(remainingBytes/int64(progress.Speed)) * time.Second
	}
}

// SetStatus updates only the status of a transfer
func (t *Tracker) SetStatus(jobID string, status TransferStatus) {
	t.mu.RLock()
	progress, exists := t.transfers[jobID]
	t.mu.RUnlock()

	if !exists {
		return
	}

	progress.mu.Lock()
	progress.Status = status
	progress.LastUpdateTime = time.Now()
	progress.mu.Unlock()
}

// GetProgress gets the current progress of a transfer
func (t *Tracker) GetProgress(jobID string) (*Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	progress, exists := t.transfers[jobID]
	return progress, exists
}

// GetAllProgress gets progress for all tracked transfers
func (t *Tracker) GetAllProgress() map[string]*Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]*Progress)
	for id, progress := range t.transfers {
		result[id] = progress
	}
	return result
}

// RemoveTransfer removes a transfer from tracking
func (t *Tracker) RemoveTransfer(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.transfers, jobID)
}

// ProgressSnapshot is a consistent copy of one transfer's progress.
type ProgressSnapshot struct {
	JobID      string         `json:"job_id"`
	FileName   string         `json:"file_name"`
	Task       Task           `json:"task"`
	Status     TransferStatus `json:"status"`
	PartsDone  int            `json:"parts_done"`
	TotalParts int            `json:"total_parts"`
	BytesDone  int64          `json:"bytes_done"`
	TotalBytes int64          `json:"total_bytes"`
	Speed      float64        `json:"speed"`
}

// Snapshot returns a consistent copy of the progress fields.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		JobID:      p.JobID,
		FileName:   p.FileName,
		Task:       p.Task,
		Status:     p.Status,
		PartsDone:  p.PartsDone,
		TotalParts: p.TotalParts,
		BytesDone:  p.BytesDone,
		TotalBytes: p.TotalBytes,
		Speed:      p.Speed,
	}
}

// Summary formats a one-line human-readable progress summary.
func (p *Progress) Summary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	percent := 0.0
	if p.TotalParts > 0 {
		percent = float64(p.PartsDone) / float64(p.TotalParts) * 100.0
	}
	line := fmt.Sprintf("%s %s: %d/%d parts (%.1f%%), %s/%s",
		p.Task, p.FileName, p.PartsDone, p.TotalParts, percent,
		formatBytes(p.BytesDone), formatBytes(p.TotalBytes))
	if p.Speed > 0 {
		line += fmt.Sprintf(", %s/s", formatBytes(int64(p.Speed)))
	}
	return line
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
