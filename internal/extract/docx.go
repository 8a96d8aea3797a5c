package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

func (e *Extractor) docx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("docx container: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx container has no %s", docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", docxBody, err)
	}

	paragraphs := e.docxParagraphs(data)
	return strings.Join(paragraphs, "\n"), nil
}

var (
	paraOpen  = []byte("<w:p")
	paraClose = []byte("</w:p>")
)

// docxParagraphs collects the <w:t> runs of every <w:p>. Each paragraph is
// decoded on its own, so one that fails contributes an empty line and the
// rest of the document survives.
func (e *Extractor) docxParagraphs(data []byte) []string {
	segments := splitParagraphs(data)
	paragraphs := make([]string, 0, len(segments))
	for i, seg := range segments {
		text, err := decodeParagraph(seg)
		if err != nil {
			e.log.Warn("Failed to decode DOCX paragraph", "paragraph", i, "error", err)
			text = ""
		}
		paragraphs = append(paragraphs, text)
	}
	return paragraphs
}

// splitParagraphs returns the raw bytes of every top-level <w:p> element.
// Nested paragraphs (text boxes) stay inside their parent's segment.
func splitParagraphs(data []byte) [][]byte {
	var segments [][]byte
	pos := 0
	for {
		start := nextParaOpen(data, pos)
		if start < 0 {
			return segments
		}
		openEnd := bytes.IndexByte(data[start:], '>')
		if openEnd < 0 {
			return append(segments, data[start:])
		}
		openEnd += start + 1
		if data[openEnd-2] == '/' {
			segments = append(segments, data[start:openEnd])
			pos = openEnd
			continue
		}

		depth, cur, end := 1, openEnd, -1
		for depth > 0 {
			c := bytes.Index(data[cur:], paraClose)
			if c < 0 {
				break
			}
			c += cur
			if o := nextParaOpen(data, cur); o >= 0 && o < c {
				if gt := bytes.IndexByte(data[o:], '>'); gt > 0 && data[o+gt-1] != '/' {
					depth++
				}
				cur = o + len(paraOpen)
				continue
			}
			depth--
			cur = c + len(paraClose)
			if depth == 0 {
				end = cur
			}
		}
		if end < 0 {
			return append(segments, data[start:])
		}
		segments = append(segments, data[start:end])
		pos = end
	}
}

// nextParaOpen finds the next <w:p> or <w:p ...> tag at or after from,
// skipping longer names such as <w:pPr>.
func nextParaOpen(data []byte, from int) int {
	for from < len(data) {
		i := bytes.Index(data[from:], paraOpen)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(paraOpen)
		if next < len(data) {
			switch data[next] {
			case '>', '/', ' ', '\t', '\n', '\r':
				return i
			}
		}
		from = next
	}
	return -1
}

func decodeParagraph(seg []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(seg))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out.String(), nil
		}
		if err != nil {
			return "", err
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch el.Name.Local {
		case "t":
			var v string
			if err := dec.DecodeElement(&v, &el); err != nil {
				return "", err
			}
			out.WriteString(v)
		case "tab":
			out.WriteString("\t")
		case "br":
			out.WriteString("\n")
		}
	}
}
