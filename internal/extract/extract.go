// Package extract turns uploaded PDF, DOCX and plain-text documents into
// plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/battlebrief/bulwark/internal/logger"
)

// ErrUnsupportedFormat is returned when neither the sniffed MIME type nor the
// filename extension maps to a decoder.
var ErrUnsupportedFormat = errors.New("unsupported file type")

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
	formatTXT
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
	mimeText = "text/plain"
)

var supportedExtensions = map[string]format{
	".pdf":  formatPDF,
	".docx": formatDOCX,
	".txt":  formatTXT,
}

// SupportedExtension reports whether filename carries one of the accepted
// upload extensions.
func SupportedExtension(filename string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extractor is stateless apart from its logger.
type Extractor struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Extractor {
	return &Extractor{log: log.With("component", "TextExtractor")}
}

// File extracts the text of the document stored at path. filename is the name
// the client declared and is only used for the extension fallback.
func (e *Extractor) File(path, filename string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to sniff %s: %w", filename, err)
	}

	switch detect(mtype, filename) {
	case formatPDF:
		return e.pdf(path)
	case formatDOCX:
		return e.docx(path)
	case formatTXT:
		return e.txt(path)
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filename, mtype.String())
	}
}

func detect(mtype *mimetype.MIME, filename string) format {
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimePDF):
			return formatPDF
		case m.Is(mimeDOCX), m.Is(mimeDOC):
			return formatDOCX
		case m.Is(mimeText):
			return formatTXT
		}
	}
	if f, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return formatUnknown
}
