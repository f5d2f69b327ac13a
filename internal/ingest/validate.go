package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/brightclass/video-service/pkg/models"
)

// sniffLen is how many leading bytes the container probe inspects.
const sniffLen = 512

// maxFilenameLen bounds the uploaded filename before key derivation.
const maxFilenameLen = 255

// Containers accepted for self-hosted ingest.
var allowedContainers = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mpeg": true,
	".mpg":  true,
	".mkv":  true,
	".wmv":  true,
}

// mp4Boxes are the top-level box names that mark an ISO base media file.
var mp4Boxes = [][]byte{[]byte("ftyp"), []byte("moof"), []byte("mdat")}

// ebmlMagic opens every Matroska-family file, including browser-recorded
// WebM.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ValidateUpload checks size and container before any bytes are stored.
// header carries the file's leading bytes for the magic-number probe.
func ValidateUpload(filename string, size, maxBytes int64, header []byte) error {
	if size <= 0 {
		return fmt.Errorf("%w: empty upload", models.ErrInvalidInput)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: upload of %d bytes exceeds limit of %d", models.ErrFileTooLarge, size, maxBytes)
	}
	if len(filename) > maxFilenameLen {
		return fmt.Errorf("%w: %d characters, limit is %d", models.ErrFilenameTooLong, len(filename), maxFilenameLen)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedContainers[ext] {
		return fmt.Errorf("%w: extension %q is not an accepted container", models.ErrInvalidContainer, ext)
	}

	switch ext {
	case ".mp4", ".mov":
		if !isMP4(header) {
			return fmt.Errorf("%w: file does not look like an ISO media container", models.ErrInvalidContainer)
		}
	case ".webm", ".mkv":
		if !isWebM(header) {
			return fmt.Errorf("%w: file does not look like a WebM/Matroska container", models.ErrInvalidContainer)
		}
	}
	// Legacy containers (avi, mpeg, wmv) pass on extension; the probe step
	// in the transcoder rejects anything the encoder cannot read.
	return nil
}

// isMP4 accepts a box name of ftyp, moof, or mdat at offset 4 (the standard
// layout) or at offset 0 (seen from some remuxers that omit the size word).
func isMP4(header []byte) bool {
	for _, box := range mp4Boxes {
		if len(header) >= 8 && bytes.Equal(header[4:8], box) {
			return true
		}
		if len(header) >= 4 && bytes.Equal(header[:4], box) {
			return true
		}
	}
	return false
}

// isWebM accepts the EBML signature, or the ascii tokens browsers embed in
// the DocType element within the first 100 bytes.
func isWebM(header []byte) bool {
	if len(header) >= 4 && bytes.Equal(header[:4], ebmlMagic) {
		return true
	}
	window := header
	if len(window) > 100 {
		window = window[:100]
	}
	lower := bytes.ToLower(window)
	return bytes.Contains(lower, []byte("webm")) || bytes.Contains(lower, []byte("matroska"))
}

// SafeObjectName strips anything outside [a-zA-Z0-9._-] from a filename so
// it can be embedded in an object key.
func SafeObjectName(filename string) string {
	base := filepath.Base(filename)
	safe := unsafeNameChars.ReplaceAllString(base, "_")
	safe = strings.Trim(safe, "._")
	if safe == "" {
		safe = "video"
	}
	return safe
}

// contentTypeForExt maps a container extension to the MIME type stored on
// the original object.
func contentTypeForExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mpeg", ".mpg":
		return "video/mpeg"
	case ".mkv":
		return "video/x-matroska"
	case ".wmv":
		return "video/x-ms-wmv"
	default:
		return "video/mp4"
	}
}
