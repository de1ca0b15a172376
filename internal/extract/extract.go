// Package extract pulls plain text out of uploaded resume documents and
// fetched job postings.
package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Supported resume formats, by lower-case extension without the dot.
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatTXT  = "txt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type, please upload a PDF, DOCX, or TXT file")
	ErrEmptyFile         = errors.New("uploaded file is empty")
)

// CorruptError reports a document in a supported format that could not be
// parsed.
type CorruptError struct {
	Format string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("could not parse %s: %v", strings.ToUpper(e.Format), e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Format returns the document format implied by filename, or
// ErrUnsupportedFormat.
func Format(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case FormatPDF, FormatDOCX, FormatTXT:
		return ext, nil
	}
	return "", ErrUnsupportedFormat
}

// Text extracts the text of a resume document, choosing the parser from the
// file extension.
func Text(filename string, data []byte) (string, error) {
	format, err := Format(filename)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	switch format {
	case FormatPDF:
		return pdfText(data)
	case FormatDOCX:
		return docxText(data)
	default:
		// Invalid UTF-8 is dropped rather than rejected.
		return strings.ToValidUTF8(string(data), ""), nil
	}
}

func pdfText(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &CorruptError{Format: FormatPDF, Err: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &CorruptError{Format: FormatPDF, Err: err}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", &CorruptError{Format: FormatPDF, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &CorruptError{Format: FormatDOCX, Err: err}
	}
	defer doc.Close()

	text, err := wordprocessingText(doc.Editable().GetContent())
	if err != nil {
		return "", &CorruptError{Format: FormatDOCX, Err: err}
	}
	return text, nil
}

// wordprocessingText flattens WordprocessingML to one line per non-blank
// paragraph.
func wordprocessingText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var paragraphs []string
	var para strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := strings.TrimSpace(para.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if p := strings.TrimSpace(para.String()); p != "" {
		paragraphs = append(paragraphs, p)
	}
	return strings.Join(paragraphs, "\n"), nil
}
