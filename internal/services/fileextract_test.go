package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a one-page PDF with a single line of Helvetica text and a
// correct cross-reference table.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
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
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestNormalizeExtension(t *testing.T) {
	tests := map[string]string{
		"pdf":        ".pdf",
		".PDF":       ".pdf",
		"Notes.DocX": ".docx",
		" txt ":      ".txt",
		"":           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeExtension(in), "input %q", in)
	}
}

func TestExtract_TXT(t *testing.T) {
	svc := NewFileExtractService()

	att, err := svc.Extract("notes.txt", "txt", []byte("\xEF\xBB\xBF  first line  \r\n\r\n\r\n\r\nsecond line\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "first line\n\nsecond line", att.Text)
	assert.Equal(t, "notes.txt", att.Name)
	assert.Equal(t, ".txt", att.Extension)
	assert.Equal(t, len([]rune(att.Text)), att.Chars)
}

func TestExtract_TXTRejectsInvalidUTF8(t *testing.T) {
	_, err := NewFileExtractService().Extract("bad.txt", ".txt", []byte{0xff, 0xfe, 0xfd})

	var corrupt *CorruptFileError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, ".txt", corrupt.Extension)
}

func TestExtract_TXTEmpty(t *testing.T) {
	_, err := NewFileExtractService().Extract("blank.txt", ".txt", []byte(" \n\t\n "))

	var empty *EmptyDocumentError
	assert.ErrorAs(t, err, &empty)
}

func TestExtract_DOCX(t *testing.T) {
	doc := buildDOCX(t, `<?xml version="1.0"?><w:document><w:body>`+
		`<w:p><w:r><w:t>Quarterly report</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>Revenue &amp; costs</w:t><w:br/><w:t>grew</w:t></w:r></w:p>`+
		`</w:body></w:document>`)

	att, err := NewFileExtractService().Extract("report.docx", ".DOCX", doc)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nRevenue & costs\ngrew", att.Text)
	assert.Equal(t, ".docx", att.Extension)
}

func TestExtract_DOCXCorrupt(t *testing.T) {
	svc := NewFileExtractService()

	_, err := svc.Extract("broken.docx", ".docx", []byte("definitely not a zip archive"))
	var corrupt *CorruptFileError
	assert.ErrorAs(t, err, &corrupt)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("word/styles.xml")
	require.NoError(t, zw.Close())

	_, err = svc.Extract("nodoc.docx", ".docx", buf.Bytes())
	assert.ErrorAs(t, err, &corrupt)
}

func TestExtract_DOCXEmpty(t *testing.T) {
	doc := buildDOCX(t, `<w:document><w:body><w:p></w:p></w:body></w:document>`)

	_, err := NewFileExtractService().Extract("empty.docx", ".docx", doc)
	var empty *EmptyDocumentError
	assert.ErrorAs(t, err, &empty)
}

func TestExtract_PDF(t *testing.T) {
	att, err := NewFileExtractService().Extract("hello.pdf", "pdf", buildPDF("Hello PDF"))
	require.NoError(t, err)
	assert.Contains(t, att.Text, "Hello")
	assert.Equal(t, ".pdf", att.Extension)
}

func TestExtract_PDFCorrupt(t *testing.T) {
	_, err := NewFileExtractService().Extract("broken.pdf", ".pdf", []byte("%PDF-1.4 truncated"))

	var corrupt *CorruptFileError
	assert.ErrorAs(t, err, &corrupt)
}

func TestExtract_Unsupported(t *testing.T) {
	for _, ext := range []string{".png", "xlsx", ""} {
		_, err := NewFileExtractService().Extract("file", ext, []byte("data"))

		var unsupported *UnsupportedFormatError
		require.ErrorAs(t, err, &unsupported, "ext %q", ext)
		assert.True(t, strings.Contains(err.Error(), "Unsupported") || strings.Contains(err.Error(), "no extension"))
	}
}
