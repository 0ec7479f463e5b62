package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/cardshot/internal/entity"
)

// FormatFromPath returns the raster format implied by the output path's extension.
func FormatFromPath(path string) (entity.ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return entity.FormatPNG, nil
	case ".jpg", ".jpeg":
		return entity.FormatJPEG, nil
	case ".webp":
		return entity.FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
}

// AcceptsQuality reports whether a capture to path takes a quality option.
// Only PNG is lossless among the supported formats.
func AcceptsQuality(path string) bool {
	return strings.ToLower(filepath.Ext(path)) != ".png"
}
