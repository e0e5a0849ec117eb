package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

// Extractor turns a PDF into its pages, in page order
type Extractor interface {
	Extract(ctx context.Context, filePath string) ([]models.Page, error)
}

// NewExtractor returns the extractor selected by cfg.Mode
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "ocr":
		return NewOCRExtractor(OpenFitz, NewTesseractRecognizer(cfg.Language), cfg.DPI), nil
	case "text":
		return &TextLayerExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported extractor mode: %s", cfg.Mode)
	}
}

// SourceName is the document name stored with every chunk
func SourceName(filePath string) string {
	return filepath.Base(filePath)
}

// pdfHeaderWindow is how far into the file readers look for the %PDF- marker
const pdfHeaderWindow = 1024

var pdfMagic = []byte("%PDF-")

// checkPDF rejects missing paths, directories and files without a PDF header.
// MuPDF also opens images, EPUB and plain text, so the header is checked here.
func checkPDF(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%w: %s is a directory", models.ErrExtraction, filePath)
	}

	head := make([]byte, pdfHeaderWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read %s: %w", models.ErrExtraction, filePath, err)
	}
	if !bytes.Contains(head[:n], pdfMagic) {
		return fmt.Errorf("%w: %s is not a valid pdf", models.ErrExtraction, filePath)
	}
	return nil
}

// TextLayerExtractor reads the embedded text layer of a PDF without OCR.
// Scanned documents have no text layer and come back as empty pages.
type TextLayerExtractor struct{}

func (e *TextLayerExtractor) Extract(ctx context.Context, filePath string) (pages []models.Page, err error) {
	if err := checkPDF(filePath); err != nil {
		return nil, err
	}

	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: invalid pdf %s: %v", models.ErrExtraction, filePath, r)
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", models.ErrExtraction, filePath, err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}
		pages = append(pages, models.Page{Number: i, Text: pageText(reader, i)})
	}
	return pages, nil
}

func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Int("page", num).Interface("panic", r).Msg("Unreadable page, using empty text")
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		log.Warn().Err(err).Int("page", num).Msg("Unreadable page, using empty text")
		return ""
	}
	return text
}
