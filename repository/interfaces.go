package repository

import (
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
)

// TimelineRepositoryInterface defines the methods for timeline data operations
type TimelineRepositoryInterface interface {
	Create(timeline *models.Timeline) error
	ListAll() ([]models.Timeline, error)
	GetByID(id uint) (*models.Timeline, error)
	Update(timelineID uint, title string, baseDate *int64, icon, color *string) error
	SetMilestonesData(timelineID uint, data []byte) error
	SetCoverPhoto(timelineID uint, photoID *uint) error
	RequestZip(timelineID uint) error
	MarkZipProcessing(timelineID uint) error
	SetZipResult(timelineID uint, zipPath *string, zipSize *int64, taskErr error) error
	Delete(id uint) error
}

// PhotoRepositoryInterface defines the methods for photo data operations
type PhotoRepositoryInterface interface {
	Create(photo *models.Photo) error
	GetByID(id uint) (*models.Photo, error)
	ListByTimelineID(timelineID uint) ([]models.Photo, error)
	SetManualDate(photoID uint, manualAt *int64) error
	SetNotes(photoID uint, notes *string) error
	ApplyMetadata(photoID uint, meta *media.Metadata) error
	Delete(id uint) error
	DeleteByTimelineID(timelineID uint) ([]models.Photo, error)
}
