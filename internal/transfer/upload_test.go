package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tgvault/tgvault/internal/chunker"
	"github.com/tgvault/tgvault/internal/manifest"
	"github.com/tgvault/tgvault/internal/retry"
	"github.com/tgvault/tgvault/internal/transport"
)

const testChunkSize = 64

func newTestUploader(t *testing.T, ft *fakeTransport) (*Uploader, *manifest.Store) {
	t.Helper()
	store, err := manifest.NewStore(t.TempDir(), "7001")
	if err != nil {
		t.Fatalf("failed to create manifest store: %v", err)
	}
	up := NewUploader(ft, store, quietLogger(), UploadOptions{
		ChunkSize: testChunkSize,
		Retry:     retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	return up, store
}

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	return path
}

func patternData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestUploadHappyPath(t *testing.T) {
	ft := newFakeTransport()
	up, store := newTestUploader(t, ft)

	data := patternData(3*testChunkSize + 10)
	src := writeSource(t, "archive.bin", data)

	res := up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Reason)
	}

	m, ok, err := store.Load("archive.bin")
	if err != nil || !ok {
		t.Fatalf("manifest missing after upload: ok=%v err=%v", ok, err)
	}
	if !m.Complete() || m.TotalParts != 4 {
		t.Fatalf("expected complete 4-part manifest, got %+v", m)
	}
	if m.FileSizeBytes != int64(len(data)) || m.ChunkSize != testChunkSize {
		t.Errorf("manifest parameters wrong: %+v", m)
	}

	if got := ft.storedPayload(m.Messages); !bytes.Equal(got, data) {
		t.Error("remote parts do not concatenate to the source bytes")
	}

	if _, err := os.Stat(chunker.PartsDir(src)); !os.IsNotExist(err) {
		t.Error("temporary parts directory not cleaned up")
	}
}

func TestUploadSourceNotFound(t *testing.T) {
	ft := newFakeTransport()
	up, _ := newTestUploader(t, ft)

	res := up.Upload(context.Background(), NewJob(TaskUpload), filepath.Join(t.TempDir(), "missing.bin"))
	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if !errors.Is(res.Err, chunker.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", res.Err)
	}
}

func TestUploadEmptyFileIsNoOp(t *testing.T) {
	ft := newFakeTransport()
	up, store := newTestUploader(t, ft)

	src := writeSource(t, "empty.bin", nil)
	res := up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusCompleted {
		t.Fatalf("empty file should be a successful no-op, got %s (%s)", res.Status, res.Reason)
	}
	if len(ft.putNames) != 0 {
		t.Errorf("no parts should be transported for an empty file, got %d", len(ft.putNames))
	}
	if _, ok, _ := store.Load("empty.bin"); ok {
		t.Error("no manifest should be recorded for an empty file")
	}
}

func TestUploadResumeSkipsRecordedParts(t *testing.T) {
	ft := newFakeTransport()
	up, store := newTestUploader(t, ft)

	data := patternData(3 * testChunkSize)
	src := writeSource(t, "resume.bin", data)

	// First run: parts 0 and 1 acknowledged, then the transport dies on
	// part 2 until the ceiling is exhausted. This also simulates the crash
	// window: the remote may already hold a copy of part 2, but the
	// manifest never recorded it, so it is re-transported (at-least-once).
	part2 := chunker.PartName("resume.bin", 2)
	ft.putFailAlways[part2] = transientErr("connection reset")

	res := up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusFailed {
		t.Fatalf("expected first run to fail, got %s", res.Status)
	}

	m, ok, _ := store.Load("resume.bin")
	if !ok || m.RecordedParts() != 2 {
		t.Fatalf("expected a 2-part prefix after the failed run, got %+v", m)
	}
	firstRef := m.Messages[0]

	// Second run: the transport works again. Only part 2 may be
	// re-transported.
	delete(ft.putFailAlways, part2)
	putsBefore := len(ft.putNames)

	res = up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusCompleted {
		t.Fatalf("expected resume to complete, got %s (%s)", res.Status, res.Reason)
	}

	newPuts := ft.putNames[putsBefore:]
	if len(newPuts) != 1 || newPuts[0] != part2 {
		t.Fatalf("resume should transport only part 2, transported %v", newPuts)
	}

	m, _, _ = store.Load("resume.bin")
	if !m.Complete() || m.RecordedParts() != 3 {
		t.Fatalf("expected complete 3-part manifest, got %+v", m)
	}
	if m.Messages[0] != firstRef {
		t.Error("resume must not re-transport already recorded parts")
	}
	if got := ft.storedPayload(m.Messages); !bytes.Equal(got, data) {
		t.Error("resumed upload does not reproduce the source bytes")
	}
}

func TestUploadFailureKeepsManifestPrefix(t *testing.T) {
	ft := newFakeTransport()
	up, store := newTestUploader(t, ft)

	data := patternData(4 * testChunkSize)
	src := writeSource(t, "partial.bin", data)

	ft.putFailAlways[chunker.PartName("partial.bin", 2)] = transientErr("timeout")

	res := up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}

	m, ok, _ := store.Load("partial.bin")
	if !ok {
		t.Fatal("manifest prefix should survive a failed upload")
	}
	if m.RecordedParts() != 2 {
		t.Errorf("expected exactly the 2 acknowledged parts recorded, got %d", m.RecordedParts())
	}
}

func TestUploadRateLimitWaitsServerDuration(t *testing.T) {
	ft := newFakeTransport()
	store, err := manifest.NewStore(t.TempDir(), "7001")
	if err != nil {
		t.Fatalf("failed to create manifest store: %v", err)
	}
	// A single-attempt ceiling: the part can only succeed if the
	// rate-limit response does not consume a retry slot.
	up := NewUploader(ft, store, quietLogger(), UploadOptions{
		ChunkSize: testChunkSize,
		Retry:     retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})

	src := writeSource(t, "limited.bin", patternData(testChunkSize))
	part0 := chunker.PartName("limited.bin", 0)
	ft.putFailOnce[part0] = []error{
		&transport.Error{Kind: transport.KindRateLimited, Op: "fake", RetryAfter: 30 * time.Millisecond},
	}

	start := time.Now()
	res := up.Upload(context.Background(), NewJob(TaskUpload), src)
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Reason)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected to wait at least the server-specified 30ms, waited %s", elapsed)
	}
}

func TestUploadCancelledContext(t *testing.T) {
	ft := newFakeTransport()
	up, _ := newTestUploader(t, ft)

	src := writeSource(t, "cancel.bin", patternData(2*testChunkSize))
	ft.putFailAlways[chunker.PartName("cancel.bin", 0)] = transientErr("slow network")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := up.Upload(ctx, NewJob(TaskUpload), src)
	if res.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s (%s)", res.Status, res.Reason)
	}
}
