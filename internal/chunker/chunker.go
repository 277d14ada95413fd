package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultChunkSize keeps each part under the transport's per-message payload
// ceiling with margin.
const DefaultChunkSize int64 = 19 * 1024 * 1024

// ErrNotFound indicates the source file does not exist.
var ErrNotFound = errors.New("source file not found")

// Split cuts the file at filePath into fixed-size parts written to a sibling
// directory named after the source path. Parts are written in a single forward
// pass and their file names are zero-padded so lexical order matches part
// order. An empty file yields no parts.
func Split(filePath string, chunkSize int64) ([]string, int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, filePath)
		}
		return nil, 0, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat file: %v", err)
	}
	fileSize := fileInfo.Size()
	if fileSize == 0 {
		return nil, 0, nil
	}

	totalParts := int((fileSize + chunkSize - 1) / chunkSize)

	partsDir := PartsDir(filePath)
	if err := os.MkdirAll(partsDir, 0755); err != nil {
		return nil, 0, fmt.Errorf("failed to create parts directory: %v", err)
	}

	baseName := filepath.Base(filePath)
	partPaths := make([]string, 0, totalParts)

	for i := 0; i < totalParts; i++ {
		partPath := filepath.Join(partsDir, PartName(baseName, i))

		partFile, err := os.Create(partPath)
		if err != nil {
			// A failed split must not leave partial parts behind.
			os.RemoveAll(partsDir)
			return nil, 0, fmt.Errorf("failed to create part file: %v", err)
		}

		_, err = io.CopyN(partFile, file, chunkSize)
		partFile.Close()
		if err != nil && err != io.EOF {
			os.RemoveAll(partsDir)
			return nil, 0, fmt.Errorf("failed to write part %d: %v", i, err)
		}

		partPaths = append(partPaths, partPath)
	}

	return partPaths, totalParts, nil
}

// PartsDir returns the deterministic temporary directory for a source path.
func PartsDir(filePath string) string {
	return filePath + "_parts"
}

// PartName formats a part file name. The index is zero-padded so that a
// lexical sort of part names reproduces index order.
func PartName(baseName string, index int) string {
	return fmt.Sprintf("%s.part%05d", baseName, index+1)
}

// Cleanup removes the temporary parts directory for a source path.
func Cleanup(filePath string) error {
	return os.RemoveAll(PartsDir(filePath))
}
