package acquire

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// installArtifact moves the completed temp file onto the final artifact path.
// Rename replaces any existing artifact atomically; a crash leaves either the
// old file or the new one, never neither.
func installArtifact(tempPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("could not create model directory: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err == nil {
		return nil
	}

	// Rename fails across mount points (EXDEV). Copy into the target
	// directory first so the final rename is still atomic.
	return moveCrossDevice(tempPath, finalPath)
}

func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	// io.Copy uses sendfile(2)/copy_file_range where available
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err := dst.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	return os.Remove(sourcePath)
}
