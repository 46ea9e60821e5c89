package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the classified type of a file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeSidecar represents a metadata sidecar file.
	FileTypeSidecar FileType = "sidecar"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".ico":  true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// SidecarExtensions maps file extensions to whether they are metadata sidecars.
var SidecarExtensions = map[string]bool{
	".xmp": true,
	".thm": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	".xmp":  "application/rdf+xml",
}

// GetFileType classifies a file extension into a FileType.
// The extension must include the leading dot; matching is case-insensitive.
func GetFileType(ext string) FileType {
	ext = strings.ToLower(ext)
	switch {
	case ImageExtensions[ext]:
		return FileTypeImage
	case VideoExtensions[ext]:
		return FileTypeVideo
	case SidecarExtensions[ext]:
		return FileTypeSidecar
	default:
		return FileTypeOther
	}
}

// TypeOf classifies a path by its extension.
func TypeOf(path string) FileType {
	return GetFileType(filepath.Ext(path))
}

// GetMimeType returns the MIME type for a file extension, or
// "application/octet-stream" when unknown.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsExtractable reports whether the catalog extracts metadata for this type.
func IsExtractable(t FileType) bool {
	return t == FileTypeImage || t == FileTypeVideo
}
