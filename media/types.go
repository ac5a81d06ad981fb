package media

import (
	"path/filepath"
	"strings"
)

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeThumbnail AssetType = "thumbnail"
	AssetTypeArchive   AssetType = "archive"
)

// Size is a requested display size in points; the cache applies the device
// scale factor before decoding.
type Size struct {
	Width  int
	Height int
}

// Metadata contains EXIF and dimension information extracted at import time.
type Metadata struct {
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	TakenAt      *int64   `json:"taken_at,omitempty"` // Unix timestamp of DateTimeOriginal
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ShutterSpeed *string  `json:"shutter_speed,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	LensMake     *string  `json:"lens_make,omitempty"`
	LensModel    *string  `json:"lens_model,omitempty"`
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
}

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}
