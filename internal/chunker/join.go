package chunker

import (
	"fmt"
	"io"
	"os"
)

// Join concatenates the given part files, in the exact order supplied, into a
// single file at outputPath. Each part is streamed so at most one part's bytes
// are in flight at a time. Join performs no validation of part count or
// content; the caller supplies the order.
func Join(partPaths []string, outputPath string) error {
	outputFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %v", outputPath, err)
	}
	defer outputFile.Close()

	for i, partPath := range partPaths {
		partFile, err := os.Open(partPath)
		if err != nil {
			return fmt.Errorf("failed to open part %d (%s): %v", i, partPath, err)
		}

		_, err = io.Copy(outputFile, partFile)
		partFile.Close()
		if err != nil {
			return fmt.Errorf("failed to append part %d to output file: %v", i, err)
		}
	}

	return nil
}
