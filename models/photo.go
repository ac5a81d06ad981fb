package models

import (
	"time"

	"gorm.io/gorm"
)

// Photo represents one imported image belonging to a timeline, using GORM.
// It corresponds to the 'photos' table. The three capture-date fields form a
// priority chain: ManualAt (user override) > TakenAt (EXIF) > AddedAt.
type Photo struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TimelineID uint   `gorm:"not null;index" json:"timeline_id"`
	FilePath   string `gorm:"not null;uniqueIndex" json:"file_path"` // relative to the media storage root

	ManualAt *int64 `gorm:"" json:"manual_at,omitempty"`       // Nullable, Unix timestamp
	TakenAt  *int64 `gorm:"index" json:"taken_at,omitempty"`   // Nullable, Unix timestamp
	AddedAt  int64  `gorm:"not null;index" json:"added_at"`    // Unix timestamp

	Latitude  *float64 `gorm:"" json:"latitude,omitempty"`  // Nullable
	Longitude *float64 `gorm:"" json:"longitude,omitempty"` // Nullable

	Width        *int     `gorm:"" json:"width,omitempty"`         // Nullable
	Height       *int     `gorm:"" json:"height,omitempty"`        // Nullable
	CameraMake   *string  `gorm:"" json:"camera_make,omitempty"`   // Nullable
	CameraModel  *string  `gorm:"" json:"camera_model,omitempty"`  // Nullable
	LensMake     *string  `gorm:"" json:"lens_make,omitempty"`     // Nullable
	LensModel    *string  `gorm:"" json:"lens_model,omitempty"`    // Nullable
	FocalLength  *float64 `gorm:"" json:"focal_length,omitempty"`  // Nullable, mm
	Aperture     *float64 `gorm:"" json:"aperture,omitempty"`      // Nullable, F-number
	ShutterSpeed *string  `gorm:"" json:"shutter_speed,omitempty"` // Nullable, e.g., "1/125"
	ISO          *int     `gorm:"" json:"iso,omitempty"`           // Nullable

	Notes *string `gorm:"" json:"notes,omitempty"` // Nullable

	CreatedAt int64          `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64          `gorm:"not null" json:"updated_at"` // Unix timestamp
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}

// CaptureTime resolves the effective capture date via the priority chain.
// It satisfies timeline.Item.
func (p *Photo) CaptureTime() time.Time {
	switch {
	case p.ManualAt != nil:
		return time.Unix(*p.ManualAt, 0).UTC()
	case p.TakenAt != nil:
		return time.Unix(*p.TakenAt, 0).UTC()
	default:
		return time.Unix(p.AddedAt, 0).UTC()
	}
}

// ImportOrder is the deterministic tie-break for photos sharing an identical
// capture timestamp. Record IDs are monotonic, so this is import order.
func (p *Photo) ImportOrder() int64 {
	return int64(p.ID)
}

// HasManualDate reports whether the user overrode the capture date.
func (p *Photo) HasManualDate() bool {
	return p.ManualAt != nil
}
