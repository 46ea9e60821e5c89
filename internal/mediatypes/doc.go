// Package mediatypes classifies files by extension into the media
// categories the catalog knows how to extract metadata from.
//
// Supported file types:
//   - Images: jpg, jpeg, png, gif, bmp, webp, ico, tiff, heic, heif
//   - Videos: mp4, mkv, avi, mov, wmv, flv, webm, m4v, mpeg, mpg, 3gp, ts
//   - Sidecars: xmp, thm (carried alongside a primary file)
//
// Everything else classifies as FileTypeOther and is ignored by the
// extraction pipeline.
package mediatypes
