package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CreateTimelineZip creates a ZIP archive containing the given photo files.
// sourceRootDir: the application's media storage root.
// photoRelPaths: photo file paths relative to sourceRootDir, in timeline order.
// archiveSaveDir: the full, absolute path where the ZIP file should be saved.
// Returns: full path of the created archive, size in bytes, error.
func CreateTimelineZip(sourceRootDir string, photoRelPaths []string, archiveSaveDir string) (string, int64, error) {
	if len(photoRelPaths) == 0 {
		return "", 0, fmt.Errorf("no photos to archive")
	}

	if err := os.MkdirAll(archiveSaveDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create zip save directory %s: %w", archiveSaveDir, err)
	}

	timestamp := time.Now().Unix()
	archiveUUID, _ := uuid.NewRandom()
	zipFilename := fmt.Sprintf("archive_%d_%s.zip", timestamp, archiveUUID.String()[:8])
	zipFilePath := filepath.Join(archiveSaveDir, zipFilename)

	zipFile, err := os.Create(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create zip file %s: %w", zipFilePath, err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	log.Printf("zipper: Archiving %d files into %s", len(photoRelPaths), zipFilePath)

	foundFiles := false
	for _, relPath := range photoRelPaths {
		sourcePath := filepath.Join(sourceRootDir, filepath.Clean(relPath))
		fileToZip, err := os.Open(sourcePath)
		if err != nil {
			log.Printf("zipper: Failed to open file %s for zipping: %v. Skipping.", sourcePath, err)
			continue
		}

		writer, err := zipWriter.Create(filepath.Base(relPath))
		if err != nil {
			fileToZip.Close()
			log.Printf("zipper: Failed to create entry in zip for %s: %v. Skipping.", relPath, err)
			continue
		}

		_, err = io.Copy(writer, fileToZip)
		fileToZip.Close()
		if err != nil {
			log.Printf("zipper: Failed to write file %s to zip: %v. Skipping.", relPath, err)
			continue
		}
		foundFiles = true
	}

	if !foundFiles {
		zipWriter.Close()
		zipFile.Close()
		os.Remove(zipFilePath)
		return "", 0, fmt.Errorf("none of the %d photo files could be archived", len(photoRelPaths))
	}

	if err := zipWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize zip writer for %s: %w", zipFilePath, err)
	}
	// file handle closed by defer

	zipInfo, err := os.Stat(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat created zip file %s: %w", zipFilePath, err)
	}

	log.Printf("zipper: Successfully created timeline zip: %s (Size: %d bytes)", zipFilePath, zipInfo.Size())
	return zipFilePath, zipInfo.Size(), nil
}
