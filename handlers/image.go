package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
	"github.com/kirin-w/timelinebackend/repository"
)

type ImageHandler struct {
	Cfg       config.Config
	PhotoRepo repository.PhotoRepositoryInterface
	Store     media.Store
	Cache     *media.ImageCache
	Proc      *media.Processor
}

func (ih *ImageHandler) resolvePhoto(w http.ResponseWriter, r *http.Request) *models.Photo {
	id, err := parseIDParam(r, "photoID")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return nil
	}
	photo, err := ih.PhotoRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "photo not found")
		} else {
			log.Printf("Error fetching photo %d: %v", id, err)
			WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to fetch photo")
		}
		return nil
	}
	return photo
}

// sizeParam reads a positive dimension query parameter with a default.
func sizeParam(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

// GetThumbnail serves a cached thumbnail sized by the w and h query
// parameters (display points; the cache applies the device scale). The
// request context rides through the cache so an abandoned scroll stops
// decode work mid-flight.
func (ih *ImageHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	photo := ih.resolvePhoto(w, r)
	if photo == nil {
		return
	}

	size := media.Size{
		Width:  sizeParam(r, "w", ih.Cfg.ThumbnailMaxSize),
		Height: sizeParam(r, "h", ih.Cfg.ThumbnailMaxSize),
	}

	img, err := ih.Cache.Fetch(r.Context(), photo.FilePath, size)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// client went away, nothing to write
			return
		}
		if errors.Is(err, os.ErrNotExist) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "photo file is missing or unreadable")
			return
		}
		log.Printf("Error fetching thumbnail for photo %d: %v", photo.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "cache_error", "failed to produce thumbnail")
		return
	}

	data, err := ih.Proc.EncodeThumbnail(img)
	if err != nil {
		log.Printf("Error encoding thumbnail for photo %d: %v", photo.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "encode_error", "failed to encode thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing thumbnail response for photo %d: %v", photo.ID, err)
	}
}

// GetOriginal serves the stored file bytes directly. The cache tiers are
// bypassed on purpose so full-resolution decodes never evict the thumbnail
// working set; EXIF stays intact because no re-encode happens.
func (ih *ImageHandler) GetOriginal(w http.ResponseWriter, r *http.Request) {
	photo := ih.resolvePhoto(w, r)
	if photo == nil {
		return
	}

	fullPath, err := ih.Store.GetFullPath(photo.FilePath)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "photo file is missing")
		return
	}
	if _, err := os.Stat(fullPath); err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "photo file is missing")
		return
	}
	http.ServeFile(w, r, fullPath)
}
