// Package extract produces metadata payloads for media files.
//
// An Extractor turns a file on disk into an opaque metadata blob that
// the cache stores verbatim. The built-in ImageExtractor decodes image
// dimensions and EXIF tags without reading the full pixel data; the
// CommandExtractor shells out to an external probe tool (ffprobe,
// exiftool) with a per-file timeout. The Router picks an extractor by
// file type and reports ErrUnsupported for anything else.
package extract
