// Package chunker splits plain text into fragments suitable for
// independent embedding and retrieval.
package chunker

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidConfiguration reports a window that can never advance.
// It is a programmer error and not recoverable at runtime.
var ErrInvalidConfiguration = errors.New("chunk overlap must be smaller than chunk size")

// Split cuts text into a sequence of overlapping fragments using a fixed
// sliding window over runes. Fragment i starts at max(0, end(i-1) - overlap);
// the last fragment may be shorter than maxChars and is emitted exactly
// once. Empty or whitespace-only input yields no fragments and no error.
func Split(text string, maxChars, overlap int) ([]string, error) {
	if maxChars <= 0 || overlap < 0 || overlap >= maxChars {
		return nil, ErrInvalidConfiguration
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := maxChars - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs cuts structured source material on blank-line paragraph
// boundaries, dropping fragments shorter than minChars.
func SplitParagraphs(text string, minChars int) []string {
	var chunks []string
	for _, para := range blankLineRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if len([]rune(para)) < minChars {
			continue
		}
		chunks = append(chunks, para)
	}
	return chunks
}
