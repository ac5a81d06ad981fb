package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store defines the interface for saving, retrieving, and deleting media
// assets. The thumbnail directory is a regenerable cache: anything under it
// may be purged at any time without data loss.
type Store interface {
	// Save stores data from reader under the asset type's directory and
	// returns the final relative path. Writes are atomic: data lands in a
	// temp file that is renamed into place, so readers never observe a
	// partial asset.
	Save(assetType AssetType, filename string, data io.Reader) (string, error)
	// OpenAsset retrieves a reader for a named asset of the given type
	OpenAsset(assetType AssetType, filename string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes an asset
	Delete(relativePath string) error
	// DeletePrefix removes every asset of the given type whose filename
	// starts with prefix
	DeletePrefix(assetType AssetType, prefix string) error
	// GetFullPath returns the absolute filesystem path for a relative asset path
	GetFullPath(relativePath string) (string, error)
	// Purge removes every asset of the given type, keeping the directory
	Purge(assetType AssetType) error
	// Usage reports total bytes and file count for an asset type
	Usage(assetType AssetType) (int64, int, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string               // absolute path to the MEDIA_STORAGE_PATH
	resolvedPathMap map[AssetType]string // maps AssetType to full absolute path
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !strings.HasPrefix(filepath.Clean(fullPath), absBasePath+string(os.PathSeparator)) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory '%s': %w", fullPath, err)
		}
		resolvedPaths[assetType] = fullPath
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath:        absBasePath,
		resolvedPathMap: resolvedPaths,
	}, nil
}

// assetTypeDir resolves the absolute directory for a given asset type
func (ls *LocalStorage) assetTypeDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	return dirPath, nil
}

// Save writes data to a temp file in the target directory and renames it
// into place. filename must be a bare name with no path separators.
func (ls *LocalStorage) Save(assetType AssetType, filename string, data io.Reader) (string, error) {
	targetDir, err := ls.assetTypeDir(assetType)
	if err != nil {
		return "", err
	}
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return "", fmt.Errorf("invalid filename '%s' for LocalStorage.Save", filename)
	}

	tmpFile, err := os.CreateTemp(targetDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in '%s': %w", targetDir, err)
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data to '%s': %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file '%s': %w", tmpPath, err)
	}

	fullSavePath := filepath.Join(targetDir, filename)
	if err := os.Rename(tmpPath, fullSavePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move asset into place at '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	return filepath.ToSlash(relativePath), nil
}

// OpenAsset opens a named asset within its type directory
func (ls *LocalStorage) OpenAsset(assetType AssetType, filename string) (io.ReadCloser, os.FileInfo, error) {
	targetDir, err := ls.assetTypeDir(assetType)
	if err != nil {
		return nil, nil, err
	}
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return nil, nil, fmt.Errorf("invalid asset filename '%s'", filename)
	}
	fullPath := filepath.Join(targetDir, filename)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", filename, os.ErrNotExist)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", filename, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", filename, err)
	}

	return file, info, nil
}

// DeletePrefix removes all files of an asset type whose name begins with
// prefix. Used to drop every cached rendition of one source photo.
func (ls *LocalStorage) DeletePrefix(assetType AssetType, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("refusing to delete with empty prefix")
	}
	dirPath, err := ls.assetTypeDir(assetType)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dirPath, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove '%s': %w", entry.Name(), err)
		}
	}
	return nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // ignore "not exist" errors
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	cleanRelativePath := filepath.Clean(relativePath)
	fullPath := filepath.Join(ls.basePath, cleanRelativePath)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	// a bare prefix check would also admit sibling directories like
	// "<base>x", so require the base itself or a path below it
	if absFullPath != ls.basePath && !strings.HasPrefix(absFullPath, ls.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}

// Purge removes all files of an asset type. Temp files from in-flight saves
// are removed too; their rename will fail and the save is retried on the
// next cache miss.
func (ls *LocalStorage) Purge(assetType AssetType) error {
	dirPath, err := ls.assetTypeDir(assetType)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read directory '%s' for purge: %w", dirPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dirPath, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove '%s' during purge: %w", entry.Name(), err)
		}
	}
	log.Printf("media.store: Purged %s assets from %s", assetType, dirPath)
	return nil
}

// Usage reports total size in bytes and file count for an asset type
func (ls *LocalStorage) Usage(assetType AssetType) (int64, int, error) {
	dirPath, err := ls.assetTypeDir(assetType)
	if err != nil {
		return 0, 0, err
	}

	var totalSize int64
	var count int
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read directory '%s' for usage: %w", dirPath, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		totalSize += info.Size()
		count++
	}
	return totalSize, count, nil
}
