package handlers

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/database"
	"github.com/kirin-w/timelinebackend/media"
)

type StorageHandler struct {
	Cfg   config.Config
	DB    *sql.DB
	Store media.Store
	Cache *media.ImageCache
}

type assetUsage struct {
	Bytes int64 `json:"bytes"`
	Files int   `json:"files"`
}

// GetStorageUsage reports per-tier disk usage, library-wide photo counts,
// and the thumbnail cache counters.
func (sh *StorageHandler) GetStorageUsage(w http.ResponseWriter, r *http.Request) {
	usage := make(map[string]assetUsage, 3)
	for _, assetType := range []media.AssetType{media.AssetTypeOriginal, media.AssetTypeThumbnail, media.AssetTypeArchive} {
		bytes, files, err := sh.Store.Usage(assetType)
		if err != nil {
			log.Printf("Error computing %s usage: %v", assetType, err)
			WriteAPIError(w, http.StatusInternalServerError, "io_error", "failed to compute storage usage")
			return
		}
		usage[string(assetType)] = assetUsage{Bytes: bytes, Files: files}
	}

	stats, err := database.GetLibraryStats(sh.DB)
	if err != nil {
		log.Printf("Error computing library stats: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to compute library stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage":   usage,
		"library": stats,
		"cache":   sh.Cache.Stats(),
	})
}

// PurgeThumbnails empties both thumbnail tiers. Safe at any time, the next
// fetches regenerate on demand.
func (sh *StorageHandler) PurgeThumbnails(w http.ResponseWriter, r *http.Request) {
	if err := sh.Cache.PurgeDisk(); err != nil {
		log.Printf("Error purging thumbnail tier: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "io_error", "failed to purge thumbnails")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Thumbnail cache purged"})
}
