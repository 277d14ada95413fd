package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tgvault/tgvault/internal/manifest"
	"github.com/tgvault/tgvault/internal/transfer"
)

// Agent receives job descriptors over a channel and drives the engine, one
// job at a time. The channel replaces the polled task file of earlier
// designs; the engine itself keeps no state between jobs.
type Agent struct {
	uploader    *transfer.Uploader
	downloader  *transfer.Downloader
	manifests   *manifest.Store
	tracker     *transfer.Tracker
	logger      *logrus.Logger
	downloadDir string

	jobs chan transfer.Job

	mu      sync.RWMutex
	results map[string]transfer.Result
	pending map[string]transfer.Job
}

// New creates an agent. downloadDir is the default destination for download
// jobs that do not name one.
func New(up *transfer.Uploader, down *transfer.Downloader, manifests *manifest.Store,
	tracker *transfer.Tracker, logger *logrus.Logger, downloadDir string) *Agent {

	return &Agent{
		uploader:    up,
		downloader:  down,
		manifests:   manifests,
		tracker:     tracker,
		logger:      logger,
		downloadDir: downloadDir,
		jobs:        make(chan transfer.Job, 16),
		results:     make(map[string]transfer.Result),
		pending:     make(map[string]transfer.Job),
	}
}

// Submit hands a job descriptor to the agent. It fails rather than blocks
// when the queue is full.
func (a *Agent) Submit(job transfer.Job) error {
	job.Status = transfer.StatusPending

	a.mu.Lock()
	a.pending[job.ID] = job
	a.mu.Unlock()

	select {
	case a.jobs <- job:
		return nil
	default:
		a.mu.Lock()
		delete(a.pending, job.ID)
		a.mu.Unlock()
		return fmt.Errorf("job queue is full")
	}
}

// Run consumes jobs until ctx is cancelled. One job runs at a time;
// concurrent jobs would multiply rate-limit collisions on the transport.
func (a *Agent) Run(ctx context.Context) {
	a.logger.Info("Agent started, waiting for jobs")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopping")
			return
		case job := <-a.jobs:
			a.setStatus(job.ID, transfer.StatusInProgress)
			result := a.dispatch(ctx, job)
			a.finish(job.ID, result)
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, job transfer.Job) transfer.Result {
	a.logger.Infof("Dispatching %s job %s", job.Task, job.ID)

	switch job.Task {
	case transfer.TaskUpload:
		return a.uploader.Upload(ctx, job, job.SourcePath)

	case transfer.TaskDownload:
		m, ok, err := a.manifests.Load(job.Filename)
		if err != nil {
			return transfer.Result{Status: transfer.StatusFailed, Reason: err.Error(), Err: err}
		}
		if !ok {
			err := fmt.Errorf("no manifest recorded for '%s'", job.Filename)
			return transfer.Result{Status: transfer.StatusFailed, Reason: err.Error(), Err: err}
		}
		destDir := job.DestDir
		if destDir == "" {
			destDir = a.downloadDir
		}
		return a.downloader.Download(ctx, job, m, destDir)

	default:
		err := fmt.Errorf("unknown task %q", job.Task)
		return transfer.Result{Status: transfer.StatusFailed, Reason: err.Error(), Err: err}
	}
}

func (a *Agent) setStatus(jobID string, status transfer.TransferStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if job, ok := a.pending[jobID]; ok {
		job.Status = status
		a.pending[jobID] = job
	}
}

func (a *Agent) finish(jobID string, result transfer.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, jobID)
	a.results[jobID] = result
}

// Result returns the terminal result for a job, if it has finished.
func (a *Agent) Result(jobID string) (transfer.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result, ok := a.results[jobID]
	return result, ok
}

// Job returns a still-queued or running job descriptor, if present.
func (a *Agent) Job(jobID string) (transfer.Job, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	job, ok := a.pending[jobID]
	return job, ok
}
