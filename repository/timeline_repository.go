package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/database"
	"github.com/kirin-w/timelinebackend/models"
)

// TimelineRepository handles database operations for Timeline entities
type TimelineRepository struct {
	DB *gorm.DB
}

// NewTimelineRepository creates a new instance of TimelineRepository
func NewTimelineRepository(db *gorm.DB) *TimelineRepository {
	return &TimelineRepository{DB: db}
}

// Create creates a new timeline record in the database
func (r *TimelineRepository) Create(timeline *models.Timeline) error {
	now := time.Now().Unix()
	if timeline.CreatedAt == 0 {
		timeline.CreatedAt = now
	}
	if timeline.UpdatedAt == 0 {
		timeline.UpdatedAt = now
	}
	if timeline.ZipStatus == "" {
		timeline.ZipStatus = database.StatusNotRequired
	}

	if err := r.DB.Create(timeline).Error; err != nil {
		return fmt.Errorf("failed to create timeline %s: %w", timeline.Title, err)
	}
	return nil
}

// ListAll retrieves all timelines, newest first
func (r *TimelineRepository) ListAll() ([]models.Timeline, error) {
	var timelines []models.Timeline
	err := r.DB.Order("created_at DESC").Find(&timelines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list timelines: %w", err)
	}
	return timelines, nil
}

// GetByID retrieves a timeline by its ID
func (r *TimelineRepository) GetByID(id uint) (*models.Timeline, error) {
	var timeline models.Timeline
	err := r.DB.First(&timeline, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get timeline by ID %d: %w", id, err)
	}
	return &timeline, nil
}

// Update updates a timeline's title, base date, icon, and color. Milestones
// and cover photo are updated by specific methods.
func (r *TimelineRepository) Update(timelineID uint, title string, baseDate *int64, icon, color *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if title != "" {
		updates["title"] = title
	}
	if baseDate != nil {
		updates["base_date"] = *baseDate
	}
	if icon != nil {
		updates["icon"] = *icon
	}
	if color != nil {
		updates["color"] = *color
	}

	// if only updated_at is present, no actual fields were changed
	if len(updates) == 1 {
		return nil
	}

	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update timeline ID %d: %w", timelineID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetMilestonesData replaces the encoded milestone blob. A nil blob resets
// the timeline to the default milestone set.
func (r *TimelineRepository) SetMilestonesData(timelineID uint, data []byte) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if data == nil {
		updates["milestones_data"] = gorm.Expr("NULL")
	} else {
		updates["milestones_data"] = data
	}

	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set milestones for timeline ID %d: %w", timelineID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetCoverPhoto updates the cover photo reference; nil clears it
func (r *TimelineRepository) SetCoverPhoto(timelineID uint, photoID *uint) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if photoID == nil {
		updates["cover_photo_id"] = gorm.Expr("NULL")
	} else {
		updates["cover_photo_id"] = *photoID
	}

	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set cover photo for timeline ID %d: %w", timelineID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RequestZip updates timeline status to indicate an archive generation is pending
func (r *TimelineRepository) RequestZip(timelineID uint) error {
	now := time.Now().Unix()
	updates := map[string]interface{}{
		"zip_status":            database.StatusPending,
		"zip_last_requested_at": now,
		"zip_error":             gorm.Expr("NULL"),
		"updated_at":            now,
	}
	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to request zip for timeline ID %d: %w", timelineID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkZipProcessing updates timeline status to indicate archive generation is in progress
func (r *TimelineRepository) MarkZipProcessing(timelineID uint) error {
	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(map[string]interface{}{
		"zip_status": database.StatusProcessing,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark zip processing for timeline ID %d: %w", timelineID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetZipResult updates a timeline with the result of an archive generation task
func (r *TimelineRepository) SetZipResult(timelineID uint, zipPath *string, zipSize *int64, taskErr error) error {
	now := time.Now().Unix()
	status := database.StatusDone
	var errStr *string

	if taskErr != nil {
		status = database.StatusError
		s := taskErr.Error()
		errStr = &s
	}

	updates := map[string]interface{}{
		"zip_status": status,
		"zip_error":  errStr,
		"updated_at": now,
	}

	if status == database.StatusDone {
		updates["zip_path"] = zipPath
		updates["zip_size"] = zipSize
		updates["zip_last_generated_at"] = now
	}

	result := r.DB.Model(&models.Timeline{}).Where("id = ?", timelineID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set zip result for timeline ID %d: %w", timelineID, result.Error)
	}
	return nil
}

// Delete removes a timeline by its ID. Soft delete via gorm.DeletedAt; the
// owned photo records are removed by PhotoRepository.DeleteByTimelineID so
// the caller can also clean up backing files.
func (r *TimelineRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Timeline{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete timeline ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
