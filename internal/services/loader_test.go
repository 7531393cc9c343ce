package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"

	"simple-bot/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestPDF writes a minimal PDF with one Helvetica text run per page.
// An empty string produces a page with no text.
func buildTestPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		content := "BT ET"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func setupTestLoader(t *testing.T) (*PDFLoader, string) {
	dir := t.TempDir()
	return NewPDFLoader(dir, logger.Nop()), dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must not outlive Load")
}

func TestPDFLoader_Load(t *testing.T) {
	loader, dir := setupTestLoader(t)

	pages, err := loader.Load(context.Background(), buildTestPDF(t, "First page text", "Second page text"))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Page)
	assert.Contains(t, pages[0].Text, "First page text")
	assert.Equal(t, 2, pages[1].Page)
	assert.Contains(t, pages[1].Text, "Second page text")

	assertDirEmpty(t, dir)
}

func TestPDFLoader_SkipsBlankPages(t *testing.T) {
	loader, dir := setupTestLoader(t)

	pages, err := loader.Load(context.Background(), buildTestPDF(t, "Alpha", "", "Gamma"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Page)
	assert.Equal(t, 3, pages[1].Page)

	assertDirEmpty(t, dir)
}

func TestPDFLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{
			name: "empty buffer",
			data: func(t *testing.T) []byte { return nil },
		},
		{
			name: "not a pdf",
			data: func(t *testing.T) []byte { return []byte("just some plain text") },
		},
		{
			name: "truncated pdf",
			data: func(t *testing.T) []byte { return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog") },
		},
		{
			name: "no extractable text",
			data: func(t *testing.T) []byte { return buildTestPDF(t, "", "") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, dir := setupTestLoader(t)

			pages, err := loader.Load(context.Background(), tt.data(t))
			require.Error(t, err)
			assert.Nil(t, pages)
			assert.ErrorIs(t, err, ErrLoad)
			assert.Equal(t, "load_error", ErrorKind(err))

			assertDirEmpty(t, dir)
		})
	}
}

func TestPDFLoader_CancelledContext(t *testing.T) {
	loader, dir := setupTestLoader(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, buildTestPDF(t, "Alpha"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrLoad)
	assert.Equal(t, "load_error", ErrorKind(err))

	assertDirEmpty(t, dir)
}
