package extract

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// txt decodes the file as UTF-8, replacing invalid sequences with U+FFFD.
func (e *Extractor) txt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
}
