package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tgvault/tgvault/internal/chunker"
	"github.com/tgvault/tgvault/internal/manifest"
	"github.com/tgvault/tgvault/internal/retry"
	"github.com/tgvault/tgvault/internal/transport"
)

// UploadOptions tunes one uploader. Zero values fall back to the reference
// behavior: 19 MiB parts, 10 attempts with a fixed 5s delay, 1s between
// parts.
type UploadOptions struct {
	ChunkSize      int64
	Retry          retry.Policy
	InterPartDelay time.Duration
	Tracker        *Tracker
}

// Uploader drives a file's parts through the transport strictly in index
// order, persisting the manifest after every acknowledged part so a crash
// can always resume from the recorded prefix.
type Uploader struct {
	transport      PartTransport
	manifests      *manifest.Store
	logger         *logrus.Logger
	chunkSize      int64
	retry          retry.Policy
	interPartDelay time.Duration
	tracker        *Tracker
}

// NewUploader creates an uploader writing progress to the given manifest
// store.
func NewUploader(tp PartTransport, manifests *manifest.Store, logger *logrus.Logger, opts UploadOptions) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Policy{MaxAttempts: 10, BaseDelay: 5 * time.Second}
	}
	return &Uploader{
		transport:      tp,
		manifests:      manifests,
		logger:         logger,
		chunkSize:      opts.ChunkSize,
		retry:          opts.Retry,
		interPartDelay: opts.InterPartDelay,
		tracker:        opts.Tracker,
	}
}

// Upload transports sourcePath part by part. Parts already recorded in the
// manifest are skipped; the upload is deliberately sequential because the
// remote side rate-limits globally and orders messages per chat.
func (u *Uploader) Upload(ctx context.Context, job Job, sourcePath string) Result {
	filename := filepath.Base(sourcePath)

	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return failed(fmt.Errorf("%w: %s", chunker.ErrNotFound, sourcePath))
		}
		return failed(fmt.Errorf("failed to stat source file: %v", err))
	}
	fileSize := info.Size()

	if fileSize == 0 {
		// Nothing to transport; treat as a successful no-op.
		u.logger.Infof("File '%s' is empty, nothing to upload", filename)
		return succeeded()
	}

	totalParts := int((fileSize + u.chunkSize - 1) / u.chunkSize)

	m := manifest.Manifest{
		Filename:      filename,
		ChunkSize:     u.chunkSize,
		TotalParts:    totalParts,
		FileSizeBytes: fileSize,
	}
	startIndex := 0

	// Resume keys solely on filename and trusts the recorded parameters; a
	// changed file under the same name will resume against the wrong byte
	// stream (accepted risk).
	if existing, ok, err := u.manifests.Load(filename); err != nil {
		return failed(err)
	} else if ok && existing.RecordedParts() > 0 && existing.RecordedParts() < totalParts {
		startIndex = existing.RecordedParts()
		m = existing
		m.TotalParts = totalParts
		m.FileSizeBytes = fileSize
		u.logger.Infof("Resuming upload of '%s' from part %d/%d", filename, startIndex+1, totalParts)
	}

	partPaths, _, err := chunker.Split(sourcePath, u.chunkSize)
	if err != nil {
		return failed(err)
	}
	defer chunker.Cleanup(sourcePath)

	if u.tracker != nil {
		u.tracker.StartTracking(job.ID, filename, TaskUpload, totalParts, fileSize)
		u.tracker.UpdateProgress(job.ID, startIndex, int64(startIndex)*u.chunkSize, StatusInProgress)
	}

	u.logger.Infof("Uploading '%s' (%d bytes) in %d parts, starting at part %d",
		filename, fileSize, totalParts, startIndex+1)

	for i := startIndex; i < totalParts; i++ {
		ref, err := u.uploadPart(ctx, partPaths[i])
		if err != nil {
			if ctx.Err() != nil {
				u.trackerDone(job.ID, StatusCancelled)
				return cancelled(ctx.Err())
			}
			u.trackerDone(job.ID, StatusFailed)
			u.logger.Errorf("Upload of '%s' aborted at part %d: %v", filename, i+1, err)
			return failed(fmt.Errorf("failed to upload part %d: %w", i, err))
		}

		// Persist the acknowledged prefix before touching the next part;
		// this is the resume invariant.
		m.Messages = append(m.Messages, ref)
		if err := u.manifests.Save(filename, m); err != nil {
			u.trackerDone(job.ID, StatusFailed)
			return failed(fmt.Errorf("failed to persist manifest after part %d: %w", i, err))
		}

		if u.tracker != nil {
			u.tracker.UpdateProgress(job.ID, i+1, min64(int64(i+1)*u.chunkSize, fileSize), StatusInProgress)
		}

		// Proactive rate-limit avoidance between parts.
		if u.interPartDelay > 0 && i < totalParts-1 {
			select {
			case <-ctx.Done():
				u.trackerDone(job.ID, StatusCancelled)
				return cancelled(ctx.Err())
			case <-time.After(u.interPartDelay):
			}
		}
	}

	u.trackerDone(job.ID, StatusCompleted)
	u.logger.Infof("Successfully uploaded '%s' (%d parts)", filename, totalParts)
	return succeeded()
}

// uploadPart transports one part under the retry policy. The part file is
// reopened per attempt so a half-sent body is never resent from the middle.
func (u *Uploader) uploadPart(ctx context.Context, partPath string) (transport.PartRef, error) {
	var ref transport.PartRef
	err := u.retry.Do(ctx, func() error {
		partFile, err := os.Open(partPath)
		if err != nil {
			return fmt.Errorf("failed to open part file: %v", err)
		}
		defer partFile.Close()

		partInfo, err := partFile.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat part file: %v", err)
		}

		r, err := u.transport.PutPart(ctx, filepath.Base(partPath), partFile, partInfo.Size())
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	return ref, err
}

func (u *Uploader) trackerDone(jobID string, status TransferStatus) {
	if u.tracker != nil {
		u.tracker.SetStatus(jobID, status)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
