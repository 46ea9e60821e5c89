package extract

import (
	"context"
	"fmt"
	"time"

	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// Router dispatches extraction by file type. A nil extractor for a type
// means files of that type are unsupported.
type Router struct {
	image Extractor
	video Extractor
}

// NewRouter builds a router with the given per-type extractors.
func NewRouter(image, video Extractor) *Router {
	return &Router{image: image, video: video}
}

// Extract runs the extractor registered for the file's type.
func (r *Router) Extract(ctx context.Context, path string) ([]byte, error) {
	fileType := mediatypes.TypeOf(path)

	var e Extractor
	switch fileType {
	case mediatypes.FileTypeImage:
		e = r.image
	case mediatypes.FileTypeVideo:
		e = r.video
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, path, fileType)
	}

	start := time.Now()
	blob, err := e.Extract(ctx, path)
	if err == nil {
		metrics.ExtractDuration.WithLabelValues(string(fileType)).Observe(time.Since(start).Seconds())
	}
	return blob, err
}
