package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/battlebrief/bulwark/internal/logger"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml":   body.String(),
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// buildPDF writes a single-page PDF with a correct xref table.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestFileSupportedFormats(t *testing.T) {
	e := New(logger.Nop())

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     []string
	}{
		{
			name:     "txt",
			filename: "report.txt",
			data:     []byte("hello"),
			want:     []string{"hello"},
		},
		{
			name:     "docx",
			filename: "report.docx",
			data:     buildDOCX(t, "First paragraph", "Second paragraph"),
			want:     []string{"First paragraph\nSecond paragraph"},
		},
		{
			name:     "pdf",
			filename: "report.pdf",
			data:     buildPDF("Hello PDF"),
			want:     []string{"Hello"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, tc.filename, tc.data)
			text, err := e.File(path, tc.filename)
			if err != nil {
				t.Fatalf("File returned error: %v", err)
			}
			if strings.TrimSpace(text) == "" {
				t.Fatal("expected non-empty text")
			}
			for _, w := range tc.want {
				if !strings.Contains(text, w) {
					t.Errorf("expected %q in extracted text %q", w, text)
				}
			}
		})
	}
}

func TestFileTextReplacesInvalidBytes(t *testing.T) {
	e := New(logger.Nop())
	path := writeTemp(t, "notes.txt", []byte("caf\xe9 ok"))

	text, err := e.File(path, "notes.txt")
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	if !strings.Contains(text, "�") || !strings.HasSuffix(text, " ok") {
		t.Errorf("expected replacement character, got %q", text)
	}
}

func TestDOCXBadParagraphKeepsTheRest(t *testing.T) {
	e := New(logger.Nop())
	data := buildDOCX(t, "first para", "bad &bogus; entity", "third para", "fourth para")
	path := writeTemp(t, "report.docx", data)

	text, err := e.File(path, "report.docx")
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	want := "first para\n\nthird para\nfourth para"
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestSplitParagraphs(t *testing.T) {
	doc := []byte(`<w:body><w:p><w:pPr/><w:r><w:t>a</w:t></w:r></w:p><w:p/>` +
		`<w:p w:rsidR="1"><w:r><w:txbxContent><w:p><w:r><w:t>b</w:t></w:r></w:p></w:txbxContent></w:r></w:p></w:body>`)

	segs := splitParagraphs(doc)
	if len(segs) != 3 {
		t.Fatalf("expected 3 top-level paragraphs, got %d: %q", len(segs), segs)
	}
	for i, want := range []string{"a", "", "b"} {
		got, err := decodeParagraph(segs[i])
		if err != nil {
			t.Fatalf("paragraph %d: %v", i, err)
		}
		if got != want {
			t.Errorf("paragraph %d = %q, want %q", i, got, want)
		}
	}
}

func TestFileUnsupportedFormat(t *testing.T) {
	e := New(logger.Nop())
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	path := writeTemp(t, "image.png", png)

	_, err := e.File(path, "image.png")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSupportedExtension(t *testing.T) {
	cases := map[string]bool{
		"a.txt":  true,
		"a.PDF":  true,
		"a.docx": true,
		"a.doc":  false,
		"a.png":  false,
		"noext":  false,
	}
	for name, want := range cases {
		if got := SupportedExtension(name); got != want {
			t.Errorf("SupportedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}
