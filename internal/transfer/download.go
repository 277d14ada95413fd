package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tgvault/tgvault/internal/chunker"
	"github.com/tgvault/tgvault/internal/manifest"
	"github.com/tgvault/tgvault/internal/retry"
)

// DownloadOptions tunes one downloader. Zero values fall back to the
// reference behavior: 35 workers, 5 attempts with exponential backoff and a
// small initial jitter.
type DownloadOptions struct {
	Workers int
	Retry   retry.Policy
	Tracker *Tracker
}

// Downloader fetches a complete manifest's parts concurrently with bounded
// parallelism and reassembles them in index order. The result is
// all-or-nothing: any part that exhausts its retries fails the whole job and
// no output file is produced.
type Downloader struct {
	transport PartTransport
	logger    *logrus.Logger
	workers   int
	retry     retry.Policy
	tracker   *Tracker
}

// NewDownloader creates a downloader reading parts through tp.
func NewDownloader(tp PartTransport, logger *logrus.Logger, opts DownloadOptions) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 35
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Policy{
			MaxAttempts:   5,
			BaseDelay:     2 * time.Second,
			Multiplier:    2,
			MaxDelay:      time.Minute,
			InitialJitter: 500 * time.Millisecond,
		}
	}
	return &Downloader{
		transport: tp,
		logger:    logger,
		workers:   opts.Workers,
		retry:     opts.Retry,
		tracker:   opts.Tracker,
	}
}

type partResult struct {
	index int
	path  string
	err   error
}

// Download fetches every part recorded in m and writes the reassembled file
// to destDir. The manifest must be complete; incomplete manifests are a
// caller error surfaced before any network activity.
func (d *Downloader) Download(ctx context.Context, job Job, m manifest.Manifest, destDir string) Result {
	if !m.Complete() {
		return failed(fmt.Errorf("%w: recorded %d of %d parts for '%s'",
			ErrIncompleteManifest, m.RecordedParts(), m.TotalParts, m.Filename))
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return failed(fmt.Errorf("failed to create destination directory: %v", err))
	}

	outputPath := filepath.Join(destDir, m.Filename)

	if m.TotalParts == 0 {
		// A complete zero-part manifest is an empty file.
		if err := chunker.Join(nil, outputPath); err != nil {
			return failed(err)
		}
		return succeeded()
	}

	tempDir := filepath.Join(destDir, m.Filename+"_parts")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return failed(fmt.Errorf("failed to create parts directory: %v", err))
	}
	// The temp directory is removed on every exit path.
	defer os.RemoveAll(tempDir)

	if d.tracker != nil {
		d.tracker.StartTracking(job.ID, m.Filename, TaskDownload, m.TotalParts, m.FileSizeBytes)
		d.tracker.SetStatus(job.ID, StatusInProgress)
	}

	d.logger.Infof("Downloading '%s' (%d parts) with up to %d workers", m.Filename, m.TotalParts, d.workers)

	indexes := make(chan int)
	results := make(chan partResult, m.TotalParts)

	workers := d.workers
	if workers > m.TotalParts {
		workers = m.TotalParts
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				results <- d.fetchPart(ctx, m, idx, tempDir)
			}
		}()
	}

	for i := 0; i < m.TotalParts; i++ {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	close(results)

	// Workers complete out of order; the part index is the only ordering
	// key for reassembly.
	partPaths := make([]string, m.TotalParts)
	done := 0
	failedParts := 0
	for res := range results {
		if res.err != nil {
			failedParts++
			d.logger.Errorf("Part %d of '%s' failed: %v", res.index, m.Filename, res.err)
			continue
		}
		partPaths[res.index] = res.path
		done++
		if d.tracker != nil {
			d.tracker.UpdateProgress(job.ID, done, min64(int64(done)*m.ChunkSize, m.FileSizeBytes), StatusInProgress)
		}
	}

	if failedParts > 0 {
		if ctx.Err() != nil {
			d.trackerDone(job.ID, StatusCancelled)
			return cancelled(ctx.Err())
		}
		d.trackerDone(job.ID, StatusFailed)
		return failed(&PartialDownloadError{FailedParts: failedParts, TotalParts: m.TotalParts})
	}

	if err := chunker.Join(partPaths, outputPath); err != nil {
		// A torn join must not leave a partially assembled file behind.
		os.Remove(outputPath)
		d.trackerDone(job.ID, StatusFailed)
		return failed(err)
	}

	d.trackerDone(job.ID, StatusCompleted)
	d.logger.Infof("Successfully reassembled '%s' at %s", m.Filename, outputPath)
	return succeeded()
}

// fetchPart resolves and streams one part to its temp file under the retry
// policy. The part file is recreated per attempt so a torn stream never
// leaves partial bytes in front of a retry.
func (d *Downloader) fetchPart(ctx context.Context, m manifest.Manifest, index int, tempDir string) partResult {
	partPath := filepath.Join(tempDir, chunker.PartName(m.Filename, index))
	ref := m.Messages[index]

	err := d.retry.Do(ctx, func() error {
		fetchURL, err := d.transport.ResolvePart(ctx, ref.FileID)
		if err != nil {
			return err
		}

		partFile, err := os.Create(partPath)
		if err != nil {
			return fmt.Errorf("failed to create part file: %v", err)
		}
		defer partFile.Close()

		return d.transport.FetchPart(ctx, fetchURL, partFile)
	})
	if err != nil {
		return partResult{index: index, err: err}
	}
	return partResult{index: index, path: partPath}
}

func (d *Downloader) trackerDone(jobID string, status TransferStatus) {
	if d.tracker != nil {
		d.tracker.SetStatus(jobID, status)
	}
}
