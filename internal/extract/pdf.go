package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func (e *Extractor) pdf(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		out.WriteString(e.pdfPage(r, i))
	}
	return out.String(), nil
}

// pdfPage returns "" for a page that cannot be decoded; the parser panics on
// some malformed content streams.
func (e *Extractor) pdfPage(r *pdf.Reader, num int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Warn("Failed to decode PDF page", "page", num, "panic", rec)
			text = ""
		}
	}()

	page := r.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		e.log.Warn("Failed to extract PDF page text", "page", num, "error", err)
		return ""
	}
	return text
}
