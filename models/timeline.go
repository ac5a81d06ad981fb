package models

import "gorm.io/gorm"

// Timeline represents a user-created journal anchored to a base date using
// GORM. It corresponds to the 'timelines' table. MilestonesData holds the
// opaque encoded custom milestone set; when absent or invalid the default
// set applies (decoded by the timeline package, never here).
type Timeline struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Title          string  `gorm:"not null" json:"title"`
	BaseDate       int64   `gorm:"not null" json:"base_date"` // Unix timestamp
	Icon           string  `gorm:"not null;default:'heart.fill'" json:"icon"`
	Color          string  `gorm:"not null;default:'#FF69B4'" json:"color"`
	MilestonesData []byte  `gorm:"" json:"-"` // Nullable, opaque blob
	CoverPhotoID   *uint   `gorm:"" json:"cover_photo_id,omitempty"`

	ZipPath            *string `gorm:"" json:"zip_path,omitempty"`              // Nullable
	ZipSize            *int64  `gorm:"" json:"zip_size,omitempty"`              // Nullable
	ZipStatus          string  `gorm:"not null;default:notRequired" json:"zip_status"`
	ZipLastGeneratedAt *int64  `gorm:"" json:"zip_last_generated_at,omitempty"` // Nullable, Unix timestamp
	ZipLastRequestedAt *int64  `gorm:"" json:"zip_last_requested_at,omitempty"` // Nullable, Unix timestamp
	ZipError           *string `gorm:"" json:"zip_error,omitempty"`             // Nullable

	CreatedAt int64          `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64          `gorm:"not null" json:"updated_at"` // Unix timestamp
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Photos []Photo `gorm:"foreignKey:TimelineID;constraint:OnDelete:CASCADE" json:"photos,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Timeline) TableName() string {
	return "timelines"
}
