package media

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	ThumbnailJpegQuality   = 90
	ThumbnailFileExtension = ".jpg"
)

// Processor handles the decode side of the image pipeline: downsampled
// decodes for thumbnails and native-resolution decodes for the detail view.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Downsample decodes sourcePath and scales it so the result fits within the
// target pixel size while preserving aspect ratio. The target already
// includes the display scale factor; a thumbnail request never hands a
// native-resolution bitmap back to the caller. EXIF orientation is applied
// during decode.
func (p *Processor) Downsample(sourcePath string, target Size) (image.Image, error) {
	if target.Width <= 0 || target.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", target.Width, target.Height)
	}

	img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", sourcePath, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= target.Width && bounds.Dy() <= target.Height {
		return img, nil
	}
	return imaging.Fit(img, target.Width, target.Height, imaging.Lanczos), nil
}

// DecodeFull decodes sourcePath at native resolution with EXIF orientation
// applied. Used by the uncached full-resolution path only.
func (p *Processor) DecodeFull(sourcePath string) (image.Image, error) {
	img, err := imaging.Open(sourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", sourcePath, err)
	}
	return img, nil
}

// EncodeThumbnail serializes a decoded thumbnail to the JPEG bytes stored in
// the disk tier.
func (p *Processor) EncodeThumbnail(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality)); err != nil {
		return nil, fmt.Errorf("thumbnail encoding failed: %w", err)
	}
	return buf.Bytes(), nil
}
