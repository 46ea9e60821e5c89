package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	// Register decoders so DecodeConfig can read dimensions for the
	// formats the catalog indexes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-catalog/internal/logging"
)

// ImageMetadata is the blob layout the built-in image extractor writes.
type ImageMetadata struct {
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format"`
	CaptureTime *time.Time `json:"capture_time,omitempty"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
	HasGPS      bool       `json:"has_gps,omitempty"`
}

// ImageExtractor reads image dimensions and EXIF tags. It decodes only
// the image header, never the pixel data, so large originals are cheap.
type ImageExtractor struct{}

// NewImageExtractor returns the built-in image extractor.
func NewImageExtractor() *ImageExtractor {
	return &ImageExtractor{}
}

// Extract returns the image's metadata as a JSON blob.
func (e *ImageExtractor) Extract(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	meta := ImageMetadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}

	// EXIF is optional; files without it still get dimensions.
	if _, err := f.Seek(0, 0); err == nil {
		if x, err := exif.Decode(f); err == nil {
			fillExif(&meta, x)
		} else {
			logging.Debug("No EXIF data in %s: %v", path, err)
		}
	}

	return json.Marshal(meta)
}

func fillExif(meta *ImageMetadata, x *exif.Exif) {
	if dt, err := x.DateTime(); err == nil {
		meta.CaptureTime = &dt
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraMake = s
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraModel = s
		}
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if n, err := tag.Int(0); err == nil {
			meta.Orientation = n
		}
	}
	if _, _, err := x.LatLong(); err == nil {
		meta.HasGPS = true
	}
}
