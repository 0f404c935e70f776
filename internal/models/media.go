// Package models defines the domain types for Keepsake.
package models

import "strings"

// MediaType is the kind of asset a manifest record or file represents.
type MediaType string

// Known media types.
const (
	MediaImage   MediaType = "Image"
	MediaVideo   MediaType = "Video"
	MediaUnknown MediaType = "Unknown"
)

// Extensions used for canonical file names.
const (
	ExtImage = "jpg"
	ExtVideo = "mp4"
)

// ParseMediaType maps a manifest "Media Type" value onto a MediaType.
func ParseMediaType(s string) MediaType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return MediaImage
	case "video":
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// Extension returns the canonical file extension (without dot), or "" for Unknown.
func (m MediaType) Extension() string {
	switch m {
	case MediaImage:
		return ExtImage
	case MediaVideo:
		return ExtVideo
	default:
		return ""
	}
}

// Valid reports whether m is Image or Video.
func (m MediaType) Valid() bool {
	return m == MediaImage || m == MediaVideo
}

// MediaTypeFromExtension maps a file extension (with or without dot) to a MediaType.
func MediaTypeFromExtension(ext string) MediaType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case ExtImage:
		return MediaImage
	case ExtVideo:
		return MediaVideo
	default:
		return MediaUnknown
	}
}
