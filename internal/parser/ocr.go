package parser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"study-rag/internal/models"
)

const defaultDPI = 200

// PageRenderer rasterizes the pages of an opened PDF
type PageRenderer interface {
	NumPage() int
	// RenderPNG renders page i (0-based) as a PNG image
	RenderPNG(i int, dpi float64) ([]byte, error)
	Close() error
}

// OpenFunc opens a PDF for rendering
type OpenFunc func(filePath string) (PageRenderer, error)

// Recognizer runs OCR on a single page image
type Recognizer interface {
	Recognize(image []byte) (string, error)
}

// OCRExtractor rasterizes every page and OCRs it
type OCRExtractor struct {
	open OpenFunc
	ocr  Recognizer
	dpi  float64
}

func NewOCRExtractor(open OpenFunc, ocr Recognizer, dpi float64) *OCRExtractor {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &OCRExtractor{open: open, ocr: ocr, dpi: dpi}
}

func (e *OCRExtractor) Extract(ctx context.Context, filePath string) ([]models.Page, error) {
	if err := checkPDF(filePath); err != nil {
		return nil, err
	}

	doc, err := e.open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", models.ErrExtraction, filePath, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	log.Debug().Str("file", filePath).Int("pages", n).Float64("dpi", e.dpi).Msg("Running OCR")

	pages := make([]models.Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}
		pages = append(pages, models.Page{Number: i + 1, Text: e.recognizePage(doc, i)})
	}
	return pages, nil
}

// recognizePage never fails: a page that cannot be rendered or read is empty
func (e *OCRExtractor) recognizePage(doc PageRenderer, i int) string {
	img, err := doc.RenderPNG(i, e.dpi)
	if err != nil {
		log.Warn().Err(err).Int("page", i+1).Msg("Failed to render page, using empty text")
		return ""
	}
	text, err := e.ocr.Recognize(img)
	if err != nil {
		log.Warn().Err(err).Int("page", i+1).Msg("OCR failed, using empty text")
		return ""
	}
	return text
}

// fitzRenderer renders pages with MuPDF
type fitzRenderer struct {
	doc *fitz.Document
}

// OpenFitz opens filePath with MuPDF. It accepts any format MuPDF reads,
// callers go through checkPDF first.
func OpenFitz(filePath string) (PageRenderer, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, err
	}
	return &fitzRenderer{doc: doc}, nil
}

func (r *fitzRenderer) NumPage() int { return r.doc.NumPage() }

func (r *fitzRenderer) RenderPNG(i int, dpi float64) ([]byte, error) {
	img, err := r.doc.ImageDPI(i, dpi)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *fitzRenderer) Close() error { return r.doc.Close() }

// TesseractRecognizer OCRs images with a fresh Tesseract client per page
type TesseractRecognizer struct {
	language string
}

func NewTesseractRecognizer(language string) *TesseractRecognizer {
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{language: language}
}

func (r *TesseractRecognizer) Recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.language); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}
