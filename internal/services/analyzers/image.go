package analyzers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
)

// AllowedImageExtensions lists the accepted chart image extensions
var AllowedImageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// DefaultImageMaxBytes is the image size ceiling
const DefaultImageMaxBytes = 10 * 1024 * 1024

// CheckImage validates the extension and size of an image file
func CheckImage(name string, size, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := AllowedImageExtensions[ext]; !ok {
		if ext == "" {
			ext = "(none)"
		}
		return models.NewInputError(models.InputUnsupported, "Unsupported image format: %s", ext)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultImageMaxBytes
	}
	if size > maxBytes {
		return models.NewInputError(models.InputTooLarge,
			"The image is %.1f MB; the limit is %.0f MB.", float64(size)/(1024*1024), float64(maxBytes)/(1024*1024))
	}
	return nil
}

// EncodeImage reads an image into an attachment. Oversized images are a
// payload-too-large failure; anything unreadable is an encoding failure.
func EncodeImage(path string, maxBytes int64) (interfaces.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return interfaces.Attachment{}, &models.CollaboratorError{Kind: models.CollaboratorEncoding, Err: err}
	}
	if err := CheckImage(path, info.Size(), maxBytes); err != nil {
		kind := models.CollaboratorEncoding
		if ie, ok := models.AsInputError(err); ok && ie.Kind == models.InputTooLarge {
			kind = models.CollaboratorPayloadTooLarge
		}
		return interfaces.Attachment{}, &models.CollaboratorError{Kind: kind, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return interfaces.Attachment{}, &models.CollaboratorError{Kind: models.CollaboratorEncoding, Err: err}
	}
	if len(data) == 0 {
		return interfaces.Attachment{}, &models.CollaboratorError{Kind: models.CollaboratorEncoding, Err: fmt.Errorf("image %s is empty", filepath.Base(path))}
	}

	return interfaces.Attachment{
		Name:     filepath.Base(path),
		MIMEType: detectImageType(path, data),
		Data:     data,
	}, nil
}

// detectImageType sniffs the content and falls back to the extension
func detectImageType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return AllowedImageExtensions[strings.ToLower(filepath.Ext(path))]
}
