package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
)

// PhotoRepository handles database operations for Photo entities
type PhotoRepository struct {
	DB *gorm.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

// Create creates a new photo record
func (r *PhotoRepository) Create(photo *models.Photo) error {
	now := time.Now().Unix()
	if photo.AddedAt == 0 {
		photo.AddedAt = now
	}
	if photo.CreatedAt == 0 {
		photo.CreatedAt = now
	}
	if photo.UpdatedAt == 0 {
		photo.UpdatedAt = now
	}

	if err := r.DB.Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create photo %s: %w", photo.FilePath, err)
	}
	return nil
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.First(&photo, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %d: %w", id, err)
	}
	return &photo, nil
}

// ListByTimelineID retrieves all photos belonging to a timeline. Order is
// not significant; sectioning sorts by effective capture date itself.
func (r *PhotoRepository) ListByTimelineID(timelineID uint) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Where("timeline_id = ?", timelineID).Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for timeline ID %d: %w", timelineID, err)
	}
	return photos, nil
}

// SetManualDate sets or clears the user's capture-date override
func (r *PhotoRepository) SetManualDate(photoID uint, manualAt *int64) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if manualAt == nil {
		updates["manual_at"] = gorm.Expr("NULL")
	} else {
		updates["manual_at"] = *manualAt
	}

	result := r.DB.Model(&models.Photo{}).Where("id = ?", photoID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set manual date for photo ID %d: %w", photoID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetNotes sets or clears the user's note on a photo
func (r *PhotoRepository) SetNotes(photoID uint, notes *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if notes == nil || *notes == "" {
		updates["notes"] = gorm.Expr("NULL")
	} else {
		updates["notes"] = *notes
	}

	result := r.DB.Model(&models.Photo{}).Where("id = ?", photoID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set notes for photo ID %d: %w", photoID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ApplyMetadata copies extracted EXIF fields onto an existing photo record.
// Only present fields overwrite; extraction is best-effort and a photo with
// no EXIF keeps its fallback added-at date.
func (r *PhotoRepository) ApplyMetadata(photoID uint, meta *media.Metadata) error {
	if meta == nil {
		return nil
	}
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	setIfPresent := func(column string, value interface{}, present bool) {
		if present {
			updates[column] = value
		}
	}
	setIfPresent("taken_at", meta.TakenAt, meta.TakenAt != nil)
	setIfPresent("latitude", meta.Latitude, meta.Latitude != nil)
	setIfPresent("longitude", meta.Longitude, meta.Longitude != nil)
	setIfPresent("width", meta.Width, meta.Width != nil)
	setIfPresent("height", meta.Height, meta.Height != nil)
	setIfPresent("camera_make", meta.CameraMake, meta.CameraMake != nil)
	setIfPresent("camera_model", meta.CameraModel, meta.CameraModel != nil)
	setIfPresent("lens_make", meta.LensMake, meta.LensMake != nil)
	setIfPresent("lens_model", meta.LensModel, meta.LensModel != nil)
	setIfPresent("focal_length", meta.FocalLength, meta.FocalLength != nil)
	setIfPresent("aperture", meta.Aperture, meta.Aperture != nil)
	setIfPresent("shutter_speed", meta.ShutterSpeed, meta.ShutterSpeed != nil)
	setIfPresent("iso", meta.ISO, meta.ISO != nil)

	result := r.DB.Model(&models.Photo{}).Where("id = ?", photoID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply metadata for photo ID %d: %w", photoID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a photo by its ID (soft delete)
func (r *PhotoRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Photo{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete photo ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteByTimelineID removes all photos belonging to a timeline and returns
// the deleted records so the caller can remove backing files and cached
// thumbnails (the cascade half owned by this layer covers records only).
func (r *PhotoRepository) DeleteByTimelineID(timelineID uint) ([]models.Photo, error) {
	photos, err := r.ListByTimelineID(timelineID)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, nil
	}

	result := r.DB.Where("timeline_id = ?", timelineID).Delete(&models.Photo{})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to delete photos for timeline ID %d: %w", timelineID, result.Error)
	}
	return photos, nil
}
