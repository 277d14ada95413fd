package chunker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir string, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestSplitPartCount(t *testing.T) {
	dir := t.TempDir()
	chunkSize := int64(64)

	cases := []struct {
		size  int64
		parts int
	}{
		{0, 0},
		{1, 1},
		{63, 1},
		{64, 1},
		{65, 2},
		{192, 3},
		{193, 4},
	}

	for _, tc := range cases {
		data := bytes.Repeat([]byte{0xAB}, int(tc.size))
		path := writeTempFile(t, dir, "input.bin", data)

		parts, total, err := Split(path, chunkSize)
		if err != nil {
			t.Fatalf("split failed for size %d: %v", tc.size, err)
		}
		if total != tc.parts {
			t.Errorf("size %d: expected %d parts, got %d", tc.size, tc.parts, total)
		}
		if len(parts) != tc.parts {
			t.Errorf("size %d: expected %d part paths, got %d", tc.size, tc.parts, len(parts))
		}

		if err := Cleanup(path); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
	}
}

func TestSplitFailureRemovesPartsDir(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "blocked.bin", bytes.Repeat([]byte{0xCD}, 200))

	// A directory squatting on the first part path makes the part file
	// creation fail partway into the split.
	partsDir := PartsDir(path)
	if err := os.MkdirAll(filepath.Join(partsDir, PartName("blocked.bin", 0)), 0755); err != nil {
		t.Fatalf("failed to set up blocking directory: %v", err)
	}

	_, _, err := Split(path, 64)
	if err == nil {
		t.Fatal("expected split to fail")
	}
	if _, err := os.Stat(partsDir); !os.IsNotExist(err) {
		t.Error("failed split must not leave the parts directory behind")
	}
}

func TestSplitNotFound(t *testing.T) {
	_, _, err := Split(filepath.Join(t.TempDir(), "missing.bin"), 64)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSplitEmptyFileIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "empty.bin", nil)

	parts, total, err := Split(path, 64)
	if err != nil {
		t.Fatalf("split of empty file should succeed: %v", err)
	}
	if total != 0 || len(parts) != 0 {
		t.Fatalf("expected zero parts for empty file, got %d paths / %d total", len(parts), total)
	}

	if _, err := os.Stat(PartsDir(path)); !os.IsNotExist(err) {
		t.Errorf("empty file should not create a parts directory")
	}
}

func TestSplitJoinRoundTrip(t *testing.T) {
	chunkSize := int64(128)

	sizes := []int{1, 100, int(chunkSize), int(3 * chunkSize), int(3*chunkSize + 1)}
	for _, size := range sizes {
		dir := t.TempDir()
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 251)
		}
		path := writeTempFile(t, dir, "source.bin", data)

		parts, total, err := Split(path, chunkSize)
		if err != nil {
			t.Fatalf("split failed: %v", err)
		}
		if total == 0 {
			t.Fatalf("expected at least one part for size %d", size)
		}

		outPath := filepath.Join(dir, "rejoined.bin")
		if err := Join(parts, outPath); err != nil {
			t.Fatalf("join failed: %v", err)
		}

		got, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("failed to read joined file: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("size %d: joined output does not match source", size)
		}
	}
}

func TestJoinEmptyPartList(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.bin")
	if err := Join(nil, outPath); err != nil {
		t.Fatalf("join of empty part list should produce an empty file: %v", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty output, got %d bytes", info.Size())
	}
}

func TestPartNamesSortLexically(t *testing.T) {
	prev := ""
	for i := 0; i < 120; i++ {
		name := PartName("video.mkv", i)
		if prev != "" && name <= prev {
			t.Fatalf("part %d name %q does not sort after %q", i, name, prev)
		}
		prev = name
	}
}
