package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/epubdoc"
	"github.com/tsawler/tabula/htmldoc"
)

// Parser extracts plain text from a file.
type Parser func(path string) (string, error)

var errInvalidUTF8 = errors.New("invalid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func defaultParsers() map[string]Parser {
	return map[string]Parser{
		".md":   parsePlainText,
		".mdx":  parsePlainText,
		".rst":  parsePlainText,
		".txt":  parsePlainText,
		".csv":  parseCSV,
		".html": parseHTML,
		".htm":  parseHTML,
		".pdf":  parseWithTabula,
		".docx": parseWithTabula,
		".odt":  parseWithTabula,
		".epub": parseEPUB,
	}
}

func parsePlainText(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured input tree
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

// parseCSV renders each row as one line of comma-separated cells.
func parseCSV(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured input tree
	if err != nil {
		return "", fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		for _, cell := range rec {
			if !utf8.ValidString(cell) {
				return "", errInvalidUTF8
			}
		}
		sb.WriteString(strings.Join(rec, ", "))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func parseHTML(path string) (string, error) {
	r, err := htmldoc.Open(path)
	if err != nil {
		return "", fmt.Errorf("open html: %w", err)
	}
	defer func() { _ = r.Close() }()

	text, err := r.Text()
	if err != nil {
		return "", fmt.Errorf("extract html text: %w", err)
	}
	return text, nil
}

// parseWithTabula handles PDF, DOCX and ODT.
func parseWithTabula(path string) (string, error) {
	text, _, err := tabula.Open(path).Text()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func parseEPUB(path string) (string, error) {
	r, err := epubdoc.Open(path)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer func() { _ = r.Close() }()

	text, err := r.Text()
	if err != nil {
		return "", fmt.Errorf("extract epub text: %w", err)
	}
	return text, nil
}
