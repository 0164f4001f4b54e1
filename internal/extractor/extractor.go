// Package extractor converts raw document bytes into plain text.
//
// Extraction is all-or-nothing: on any error no partial text is returned.
package extractor

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for media types this package does
	// not handle.
	ErrUnsupportedFormat = errors.New("unsupported media type")

	// ErrParseFailure is returned when the bytes cannot be parsed into
	// usable text.
	ErrParseFailure = errors.New("failed to parse document")
)

// Supported media types.
const (
	MediaTypePDF       = "application/pdf"
	MediaTypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypePlainText = "text/plain"
)

// Extract converts data into plain text based on the declared media type.
// Parameters after ";" in the media type are ignored.
func Extract(data []byte, mediaType string) (string, error) {
	switch normalizeMediaType(mediaType) {
	case MediaTypePlainText:
		return extractPlainText(data)
	case MediaTypeDOCX:
		return extractDOCX(data)
	case MediaTypePDF:
		return extractPDF(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

func normalizeMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// extractPlainText returns the buffer decoded as UTF-8, unchanged.
func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrParseFailure
	}
	return string(data), nil
}
