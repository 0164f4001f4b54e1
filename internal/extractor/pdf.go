package extractor

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragcore-go/pkg/log"
)

// extractPDF first tries the PDF library, then degrades to a raw scan of
// the content streams. The raw scan only recovers text from PDFs whose
// streams are not compressed, which is exactly the case where a full
// parser tends to be unnecessary.
func extractPDF(data []byte) (string, error) {
	if text, err := extractPDFParsed(data); err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	} else if err != nil {
		log.Warnf("[Extractor] pdf library failed, falling back to raw scan: %v", err)
	}

	if text := scanTextOperators(data); strings.TrimSpace(text) != "" {
		return text, nil
	}
	if text := scanPrintableRuns(data); strings.TrimSpace(text) != "" {
		return text, nil
	}
	return "", ErrParseFailure
}

// extractPDFParsed reads the document through the pdf library. The library
// panics on some malformed files, so the panic is converted to an error.
func extractPDFParsed(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = ErrParseFailure
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, content); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// textShowRe matches parenthesized text-show operators, e.g. "(hello) Tj"
// and the TJ array form. Only finds text in uncompressed content streams.
var textShowRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*T[jJ]`)

// scanTextOperators scans the raw bytes for text-show operators.
func scanTextOperators(data []byte) string {
	matches := textShowRe.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(unescapePDFString(string(m[1])))
	}
	return sb.String()
}

// unescapePDFString resolves the escape sequences of a PDF literal string.
func unescapePDFString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// scanPrintableRuns extracts runs of printable ASCII as a last resort.
// Runs shorter than four characters are noise and skipped.
func scanPrintableRuns(data []byte) string {
	const minRun = 4

	var sb strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minRun {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.Write(run)
		}
		run = run[:0]
	}

	for _, b := range data {
		if b >= 0x20 && b <= 0x7e {
			run = append(run, b)
		} else {
			flush()
		}
	}
	flush()
	return sb.String()
}
