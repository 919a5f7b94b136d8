package identify

import (
	"fmt"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/ierr"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateImages implements C2 (§4.2). It returns a wrapped
// ierr.ErrValidation on any violated precondition, or nil on success.
func ValidateImages(images []ImageBlob, cfg config.ValidatorConfig) error {
	n := len(images)
	if n < 1 || n > cfg.MaxImages {
		return fmt.Errorf("identify: got %d images, want between 1 and %d: %w", n, cfg.MaxImages, ierr.ErrValidation)
	}

	var total int64
	for i, img := range images {
		if len(img.Bytes) == 0 {
			return fmt.Errorf("identify: image %d is empty: %w", i, ierr.ErrValidation)
		}
		size := int64(len(img.Bytes))
		if size > cfg.MaxImageBytes {
			return fmt.Errorf("identify: image %d is %d bytes, exceeds max %d: %w", i, size, cfg.MaxImageBytes, ierr.ErrValidation)
		}
		if !allowedContentTypes[img.ContentType] {
			return fmt.Errorf("identify: image %d has unsupported content type %q: %w", i, img.ContentType, ierr.ErrValidation)
		}
		total += size
	}
	if total > cfg.MaxTotalBytes {
		return fmt.Errorf("identify: total image size %d exceeds max %d: %w", total, cfg.MaxTotalBytes, ierr.ErrValidation)
	}

	return nil
}
