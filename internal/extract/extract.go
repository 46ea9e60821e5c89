package extract

import (
	"context"
	"errors"
)

// ErrUnsupported means no extractor handles the file. It is a permanent
// condition for a given path; callers should skip the file rather than
// retry it.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor produces a metadata blob for the file at path. The blob is
// opaque to the cache; only the extractor that produced it needs to
// understand its layout.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]byte, error)
}
