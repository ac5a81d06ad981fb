package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPhotosSubDir     = "photos"
	DefaultThumbnailsSubDir = "thumbnails"
	DefaultArchivesSubDir   = "archives"
)

const (
	defaultImportQueueSize  = 200
	defaultNumImportWorkers = 4
	defaultThumbnailMaxSize = 300
	defaultDisplayScale     = 2
	defaultMemCacheEntries  = 128
	defaultMemCacheMB       = 64
	defaultImportPauseMs    = 50
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for all stored files
	PhotosPath       string // full-calculated path for imported originals
	ThumbnailsPath   string // full-calculated path for the disk thumbnail tier
	ArchivesPath     string // full-calculated path for timeline zip archives

	// thumbnail cache settings
	ThumbnailMaxSize      int   // longest side of a pre-warmed thumbnail
	DisplayScale          int   // device scale factor applied to requested sizes
	MemoryCacheMaxEntries int   // memory tier entry cap
	MemoryCacheMaxBytes   int64 // memory tier estimated-cost cap

	// import worker settings
	ImportQueueSize  int
	NumImportWorkers int
	ImportPauseMs    int // inter-item pause during batch imports
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "timelines.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	photosSubDir := getEnvOrDefault("PHOTOS_SUBDIR", DefaultPhotosSubDir)
	thumbSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)
	archiveSubDir := getEnvOrDefault("ARCHIVES_SUBDIR", DefaultArchivesSubDir)

	cfg := Config{
		DatabasePath:          dbPath,
		MediaStoragePath:      absMediaStorage,
		PhotosPath:            filepath.Join(absMediaStorage, photosSubDir),
		ThumbnailsPath:        filepath.Join(absMediaStorage, thumbSubDir),
		ArchivesPath:          filepath.Join(absMediaStorage, archiveSubDir),
		ThumbnailMaxSize:      getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		DisplayScale:          getEnvIntOrDefault("DISPLAY_SCALE", defaultDisplayScale),
		MemoryCacheMaxEntries: getEnvIntOrDefault("MEMORY_CACHE_MAX_ENTRIES", defaultMemCacheEntries),
		MemoryCacheMaxBytes:   int64(getEnvIntOrDefault("MEMORY_CACHE_MAX_MB", defaultMemCacheMB)) << 20,
		ImportQueueSize:       getEnvIntOrDefault("IMPORT_QUEUE_SIZE", defaultImportQueueSize),
		NumImportWorkers:      getEnvIntOrDefault("NUM_IMPORT_WORKERS", defaultNumImportWorkers),
		ImportPauseMs:         getEnvIntOrDefault("IMPORT_PAUSE_MS", defaultImportPauseMs),
	}

	return cfg, nil
}
