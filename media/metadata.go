package media

import (
	"fmt"
	"image"
	"log"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
)

// helper to safely get and convert a rational tag (like Aperture, FocalLength)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	// rational numbers are often stored as num/den
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// sometimes stored as Int instead
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

// helper to safely get and convert an integer tag (like ISO)
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	// ISO might be a slice, get the first value
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(tag.String(), "\"\x00")
	if val == "" {
		return nil
	}
	return &val
}

// helper to get Shutter Speed specifically, formatting it nicely
func getShutterSpeed(exifData *exif.Exif) *string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}

	if num == 1 && den > 1 { // common case: 1/XXX
		s := fmt.Sprintf("1/%d", den)
		return &s
	}

	val := float64(num) / float64(den)
	if val >= 1.0 {
		s := fmt.Sprintf("%.1fs", val) // e.g., 1.5s, 30.0s
		return &s
	}
	s := fmt.Sprintf("%.4fs", val)
	return &s
}

// ExtractMetadata reads dimensions and EXIF data from an imported image.
// Every field is best-effort: files without EXIF yield dimensions only and
// extraction failures are never fatal to an import.
func ExtractMetadata(filePath string) (*Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	config, _, err := image.DecodeConfig(file)
	var width, height *int
	if err == nil {
		w, h := config.Width, config.Height
		width = &w
		height = &h
	} else {
		log.Printf("metadata: Warning - Could not decode config for dimensions of %s: %v", filePath, err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek file %s: %w", filePath, err)
	}

	exifData, err := exif.Decode(file)
	if err != nil {
		// not necessarily an error, the file might just lack EXIF data
		return &Metadata{Width: width, Height: height}, nil
	}

	meta := &Metadata{
		Width:        width,
		Height:       height,
		Aperture:     getRational(exifData, exif.FNumber),
		ShutterSpeed: getShutterSpeed(exifData),
		ISO:          getInt(exifData, exif.ISOSpeedRatings),
		FocalLength:  getRational(exifData, exif.FocalLength),
		LensMake:     getString(exifData, exif.LensMake),
		LensModel:    getString(exifData, exif.LensModel),
		CameraMake:   getString(exifData, exif.Make),
		CameraModel:  getString(exifData, exif.Model),
	}

	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	if lat, long, err := exifData.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &long
	}

	return meta, nil
}
