package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facette/natsort"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
	"github.com/kirin-w/timelinebackend/realtime"
	"github.com/kirin-w/timelinebackend/repository"
	"github.com/kirin-w/timelinebackend/workers"
)

const maxImportMemory = 32 << 20 // multipart parse buffer

type PhotoHandler struct {
	Cfg          config.Config
	TimelineRepo repository.TimelineRepositoryInterface
	PhotoRepo    repository.PhotoRepositoryInterface
	Store        media.Store
	Cache        *media.ImageCache
	Processor    *workers.ImportProcessor
	Hub          *realtime.Hub
}

// storedName builds the uuid filename an imported photo is saved under.
// Originals are immutable once saved, so the name doubles as a cache key.
func storedName(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if ext == "" {
		ext = ".jpg"
	}
	return uuid.NewString() + ext
}

// savePhoto stores one source file and creates its database record. The
// metadata pass happens later on the worker pool.
func (ph *PhotoHandler) savePhoto(timelineID uint, filename string, data io.Reader) (*models.Photo, error) {
	relPath, err := ph.Store.Save(media.AssetTypeOriginal, storedName(filename), data)
	if err != nil {
		return nil, fmt.Errorf("failed to store photo file: %w", err)
	}

	photo := &models.Photo{
		TimelineID: timelineID,
		FilePath:   relPath,
		AddedAt:    time.Now().Unix(),
	}
	if err := ph.PhotoRepo.Create(photo); err != nil {
		if delErr := ph.Store.Delete(relPath); delErr != nil {
			log.Printf("Error removing orphaned photo file %s: %v", relPath, delErr)
		}
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}
	return photo, nil
}

// queueBatch enqueues the metadata/thumbnail pass for freshly saved photos.
// Jobs the queue rejects are reported as failed batch slots so the batch
// still reaches its terminal event, and the count is surfaced to the caller.
func (ph *PhotoHandler) queueBatch(timelineID uint, photos []*models.Photo) (string, int) {
	batchID := uuid.NewString()
	total := len(photos)
	dropped := 0
	for i, photo := range photos {
		job := workers.ImportJob{
			TaskType:   workers.TaskImport,
			TimelineID: timelineID,
			PhotoID:    photo.ID,
			RelPath:    photo.FilePath,
			BatchID:    batchID,
			BatchIndex: i + 1,
			BatchTotal: total,
		}
		if !ph.Processor.QueueJob(job) {
			dropped++
			ph.Processor.ReportDropped(job)
		}
	}
	return batchID, dropped
}

// ImportPhotos accepts a multipart batch under the "photos" field, stores
// each file, and queues background processing. Responds 202 immediately;
// progress arrives over the websocket.
func (ph *PhotoHandler) ImportPhotos(w http.ResponseWriter, r *http.Request) {
	timelineID, err := parseIDParam(r, "timelineID")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	if _, err := ph.TimelineRepo.GetByID(timelineID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "timeline not found")
		} else {
			WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to fetch timeline")
		}
		return
	}

	if err := r.ParseMultipartForm(maxImportMemory); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid multipart form: "+err.Error())
		return
	}
	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "no files under 'photos' field")
		return
	}

	var saved []*models.Photo
	var skipped []string
	for _, header := range files {
		if !media.IsRasterImage(header.Filename) {
			skipped = append(skipped, header.Filename)
			continue
		}
		photo, err := ph.saveUpload(timelineID, header)
		if err != nil {
			log.Printf("Error importing %s into timeline %d: %v", header.Filename, timelineID, err)
			skipped = append(skipped, header.Filename)
			continue
		}
		saved = append(saved, photo)
	}
	if len(saved) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_field", "no importable image files in request")
		return
	}

	batchID, dropped := ph.queueBatch(timelineID, saved)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"batch_id": batchID,
		"imported": saved,
		"skipped":  skipped,
		"dropped":  dropped,
	})
}

func (ph *PhotoHandler) saveUpload(timelineID uint, header *multipart.FileHeader) (*models.Photo, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()
	return ph.savePhoto(timelineID, header.Filename, file)
}

// ImportDirectory imports every image file from a directory on the server.
// Files are imported in natural sort order so "photo2" lands before
// "photo10", which fixes the capture-time tie-break for scanned batches.
func (ph *PhotoHandler) ImportDirectory(w http.ResponseWriter, r *http.Request) {
	timelineID, err := parseIDParam(r, "timelineID")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	if _, err := ph.TimelineRepo.GetByID(timelineID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "timeline not found")
		} else {
			WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to fetch timeline")
		}
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "path is required")
		return
	}

	dirPath := filepath.Clean(req.Path)
	stat, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_field", "path does not exist: "+dirPath)
		return
	}
	if err != nil {
		log.Printf("Error stating import directory %s: %v", dirPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "io_error", "could not access path")
		return
	}
	if !stat.IsDir() {
		WriteAPIError(w, http.StatusBadRequest, "invalid_field", "path is not a directory")
		return
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Printf("Error reading import directory %s: %v", dirPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "io_error", "could not read directory")
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && media.IsRasterImage(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_field", "no image files in directory")
		return
	}
	natsort.Sort(names)

	var saved []*models.Photo
	var skipped []string
	for _, name := range names {
		photo, err := ph.importLocalFile(timelineID, filepath.Join(dirPath, name))
		if err != nil {
			log.Printf("Error importing %s into timeline %d: %v", name, timelineID, err)
			skipped = append(skipped, name)
			continue
		}
		saved = append(saved, photo)
	}
	if len(saved) == 0 {
		WriteAPIError(w, http.StatusInternalServerError, "io_error", "none of the directory files could be imported")
		return
	}

	batchID, dropped := ph.queueBatch(timelineID, saved)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"batch_id": batchID,
		"imported": saved,
		"skipped":  skipped,
		"dropped":  dropped,
	})
}

func (ph *PhotoHandler) importLocalFile(timelineID uint, sourcePath string) (*models.Photo, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()
	return ph.savePhoto(timelineID, filepath.Base(sourcePath), file)
}

// CancelImport skips the unprocessed remainder of a running batch. Photos
// already imported stay.
func (ph *PhotoHandler) CancelImport(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "missing batch id")
		return
	}
	ph.Processor.CancelBatch(batchID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Import batch cancelled", "batch_id": batchID})
}

func (ph *PhotoHandler) getPhotoOr404(w http.ResponseWriter, r *http.Request) *models.Photo {
	id, err := parseIDParam(r, "photoID")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return nil
	}
	photo, err := ph.PhotoRepo.GetByID(id)
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

func (ph *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photo := ph.getPhotoOr404(w, r)
	if photo == nil {
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// SetPhotoDate sets or clears the manual capture-date override. A null
// manual_at restores the EXIF/import fallback chain.
func (ph *PhotoHandler) SetPhotoDate(w http.ResponseWriter, r *http.Request) {
	photo := ph.getPhotoOr404(w, r)
	if photo == nil {
		return
	}

	var req struct {
		ManualAt *int64 `json:"manual_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if err := ph.PhotoRepo.SetManualDate(photo.ID, req.ManualAt); err != nil {
		log.Printf("Error setting manual date for photo %d: %v", photo.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to update photo date")
		return
	}

	updated, err := ph.PhotoRepo.GetByID(photo.ID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Photo date updated", "id": photo.ID})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (ph *PhotoHandler) SetPhotoNotes(w http.ResponseWriter, r *http.Request) {
	photo := ph.getPhotoOr404(w, r)
	if photo == nil {
		return
	}

	var req struct {
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if err := ph.PhotoRepo.SetNotes(photo.ID, req.Notes); err != nil {
		log.Printf("Error setting notes for photo %d: %v", photo.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to update photo notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Photo notes updated", "id": photo.ID})
}

// DeletePhoto removes the record, the stored file, and every cached
// thumbnail rendition.
func (ph *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	photo := ph.getPhotoOr404(w, r)
	if photo == nil {
		return
	}

	if err := ph.PhotoRepo.Delete(photo.ID); err != nil {
		log.Printf("Error deleting photo %d: %v", photo.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to delete photo")
		return
	}
	if err := ph.Store.Delete(photo.FilePath); err != nil {
		log.Printf("Error deleting photo file %s: %v", photo.FilePath, err)
	}
	ph.Cache.Invalidate(photo.FilePath)

	ph.Hub.Broadcast(realtime.Event{
		Type:       realtime.EventPhotoDeleted,
		TimelineID: photo.TimelineID,
		PhotoID:    photo.ID,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Photo deleted", "id": photo.ID})
}
