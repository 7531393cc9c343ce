package services

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"simple-bot/internal/models"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PageLoader turns raw document bytes into ordered page records
type PageLoader interface {
	Load(ctx context.Context, data []byte) ([]models.PageRecord, error)
}

// PDFLoader extracts per-page plain text from PDF bytes.
// The bytes are spooled to a temp file that never outlives the Load call.
type PDFLoader struct {
	tempDir string
	logger  *zap.SugaredLogger
}

// NewPDFLoader creates a loader that spools uploads under tempDir ("" means os.TempDir)
func NewPDFLoader(tempDir string, logger *zap.SugaredLogger) *PDFLoader {
	return &PDFLoader{
		tempDir: tempDir,
		logger:  logger,
	}
}

// Load extracts the non-blank pages of a PDF. Any parse failure, and a document
// without a single page of extractable text, is reported as ErrLoad.
func (l *PDFLoader) Load(ctx context.Context, data []byte) (pages []models.PageRecord, err error) {
	if len(data) == 0 {
		return nil, loadError("load_pdf", fmt.Errorf("empty file"))
	}
	if !isPDF(data) {
		return nil, loadError("load_pdf", fmt.Errorf("missing %%PDF header (head=%q)", firstBytes(data, 8)))
	}

	tmp, err := os.CreateTemp(l.tempDir, "upload-*.pdf")
	if err != nil {
		return nil, loadError("load_pdf", fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			l.logger.Warnf("Failed to remove temp file %s: %v", tmpPath, rmErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, loadError("load_pdf", fmt.Errorf("failed to write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return nil, loadError("load_pdf", fmt.Errorf("failed to close temp file: %w", err))
	}

	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = loadError("load_pdf", fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	f, reader, err := pdf.Open(tmpPath)
	if err != nil {
		return nil, loadError("load_pdf", fmt.Errorf("pdf reader: %w", err))
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]models.PageRecord, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, loadError("load_pdf", err)
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, loadError("load_pdf", fmt.Errorf("page %d plaintext: %w", i, err))
		}

		record := models.PageRecord{Page: i, Text: text}
		if record.IsBlank() {
			continue
		}
		pages = append(pages, record)
	}

	if len(pages) == 0 {
		return nil, loadError("load_pdf", fmt.Errorf("no extractable text in %d page(s)", total))
	}

	l.logger.Debugf("Extracted %d of %d pages (%d bytes)", len(pages), total, len(data))
	return pages, nil
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
