package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
)

// PreviewChars is how much of an extracted attachment the UI shows.
const PreviewChars = 500

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// NormalizeExtension lower-cases ext and makes sure it starts with a dot.
// It accepts either a bare extension ("PDF") or a file name ("notes.pdf").
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if e := filepath.Ext(ext); e != "" {
		return e
	}
	return "." + strings.TrimPrefix(ext, ".")
}

// Extract turns the raw bytes of an uploaded file into an Attachment.
// ext decides the parser; the content is never sniffed.
func (s *FileExtractService) Extract(name, ext string, data []byte) (*models.Attachment, error) {
	ext = NormalizeExtension(ext)

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		text, err = s.extractTXT(data)
	case ".pdf":
		text, err = s.extractPDF(data)
	case ".docx":
		text, err = s.extractDOCX(data)
	default:
		err = &UnsupportedFormatError{Extension: ext}
	}

	label := ext
	if _, ok := err.(*UnsupportedFormatError); ok {
		label = "unsupported"
	}
	if err != nil {
		metrics.AttachmentExtractions.WithLabelValues(label, "error").Inc()
		return nil, err
	}
	metrics.AttachmentExtractions.WithLabelValues(label, "ok").Inc()

	return &models.Attachment{
		Name:      filepath.Base(name),
		Extension: ext,
		Text:      text,
		Chars:     utf8.RuneCountInString(text),
	}, nil
}

func (s *FileExtractService) extractTXT(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", &CorruptFileError{Extension: ".txt", Err: errors.New("file is not valid UTF-8")}
	}

	text := normalizeExtractedText(string(data))
	if text == "" {
		return "", &EmptyDocumentError{Extension: ".txt"}
	}

	return text, nil
}

func (s *FileExtractService) extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &CorruptFileError{Extension: ".pdf", Err: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &CorruptFileError{Extension: ".pdf", Err: err}
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text = normalizeExtractedText(b.String())
	if text == "" {
		return "", &EmptyDocumentError{Extension: ".pdf"}
	}

	return text, nil
}

func (s *FileExtractService) extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &CorruptFileError{Extension: ".docx", Err: err}
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", &CorruptFileError{Extension: ".docx", Err: err}
		}
		documentXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", &CorruptFileError{Extension: ".docx", Err: err}
		}
		break
	}

	if documentXML == nil {
		return "", &CorruptFileError{Extension: ".docx", Err: errors.New("word/document.xml not found")}
	}

	text := normalizeExtractedText(stripDOCXML(documentXML))
	if text == "" {
		return "", &EmptyDocumentError{Extension: ".docx"}
	}

	return text, nil
}

var (
	xmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	docxBreakTags   = regexp.MustCompile(`<w:(br|cr)\s*/>`)
	docxTabTag      = regexp.MustCompile(`<w:tab\s*/>`)
	docxXMLEntities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
)

func stripDOCXML(src []byte) string {
	s := string(src)

	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = docxBreakTags.ReplaceAllString(s, "\n")
	s = docxTabTag.ReplaceAllString(s, "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")

	return docxXMLEntities.Replace(s)
}

// normalizeExtractedText converts line endings to LF, trims every line and
// collapses runs of blank lines into one.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	var b strings.Builder

	emptyCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			b.WriteString("\n")
			continue
		}
		emptyCount = 0
		b.WriteString(trimmed)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}
