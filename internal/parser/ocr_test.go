package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

type fakeDoc struct {
	pages  []string
	broken map[int]bool
	closed bool
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) RenderPNG(i int, _ float64) ([]byte, error) {
	if d.broken[i] {
		return nil, errors.New("cannot render")
	}
	return []byte(d.pages[i]), nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

// echoOCR returns the "image" bytes as text
type echoOCR struct{}

func (echoOCR) Recognize(image []byte) (string, error) {
	if string(image) == "blurry" {
		return "", errors.New("no text")
	}
	return string(image), nil
}

func tempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOCRExtractorPagesInOrder(t *testing.T) {
	doc := &fakeDoc{pages: []string{"first", "second", "blurry", "fourth"}, broken: map[int]bool{1: true}}
	open := func(string) (PageRenderer, error) { return doc, nil }

	pages, err := NewOCRExtractor(open, echoOCR{}, 0).Extract(context.Background(), tempPDF(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []models.Page{
		{Number: 1, Text: "first"},
		{Number: 2},
		{Number: 3},
		{Number: 4, Text: "fourth"},
	}
	if len(pages) != len(want) {
		t.Fatalf("got %d pages", len(pages))
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Errorf("page %d = %+v, want %+v", i, pages[i], want[i])
		}
	}
	if !doc.closed {
		t.Error("document not closed")
	}
}

func TestOCRExtractorMissingFile(t *testing.T) {
	open := func(string) (PageRenderer, error) {
		t.Fatal("open should not be called")
		return nil, nil
	}
	_, err := NewOCRExtractor(open, echoOCR{}, 200).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestOCRExtractorInvalidPDF(t *testing.T) {
	open := func(string) (PageRenderer, error) { return nil, errors.New("not a pdf") }
	_, err := NewOCRExtractor(open, echoOCR{}, 200).Extract(context.Background(), tempPDF(t))
	if !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestOCRExtractorRejectsNonPDF(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	cases := []struct {
		name    string
		content []byte
	}{
		{"notes.pdf", pngHeader},
		{"notes.png", pngHeader},
		{"plain.txt", []byte("Newton's laws of motion\n")},
		{"empty.pdf", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.name)
			if err := os.WriteFile(path, tc.content, 0o644); err != nil {
				t.Fatal(err)
			}
			pages, err := NewOCRExtractor(OpenFitz, echoOCR{}, 0).Extract(context.Background(), path)
			if !errors.Is(err, models.ErrExtraction) {
				t.Fatalf("err = %v, want ErrExtraction", err)
			}
			if pages != nil {
				t.Fatalf("got %d pages", len(pages))
			}
		})
	}
}

func TestCheckPDFHeader(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		ok      bool
	}{
		{"plain", "%PDF-1.7\n%âãÏÓ\n", true},
		{"leading junk", "\x00\x00garbage\n%PDF-1.4\n", true},
		{"no header", "just some text", false},
		{"header too late", strings.Repeat(" ", pdfHeaderWindow) + "%PDF-1.4", false},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".pdf")
		if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
			t.Fatal(err)
		}
		err := checkPDF(path)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, models.ErrExtraction) {
			t.Errorf("%s: err = %v, want ErrExtraction", tc.name, err)
		}
	}
	if err := checkPDF(dir); !errors.Is(err, models.ErrExtraction) {
		t.Errorf("directory: err = %v, want ErrExtraction", err)
	}
}

func TestOCRExtractorCanceled(t *testing.T) {
	doc := &fakeDoc{pages: []string{"a", "b"}}
	open := func(string) (PageRenderer, error) { return doc, nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOCRExtractor(open, echoOCR{}, 200).Extract(ctx, tempPDF(t))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("err = %v", err)
	}
}

func TestTextLayerExtractorMissingFile(t *testing.T) {
	_, err := (&TextLayerExtractor{}).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestTextLayerExtractorInvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pdf")
	if err := os.WriteFile(path, []byte("plain text, no pdf here"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := (&TextLayerExtractor{}).Extract(context.Background(), path)
	if !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestNewExtractor(t *testing.T) {
	if _, err := NewExtractor(configFor("text")); err != nil {
		t.Fatalf("text mode: %v", err)
	}
	e, err := NewExtractor(configFor(""))
	if err != nil {
		t.Fatalf("default mode: %v", err)
	}
	if _, ok := e.(*OCRExtractor); !ok {
		t.Fatalf("default extractor = %T", e)
	}
	if _, err := NewExtractor(configFor("docx")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestSourceName(t *testing.T) {
	if got := SourceName("/data/scans/Physics Notes.pdf"); got != "Physics Notes.pdf" {
		t.Fatalf("SourceName = %q", got)
	}
}

func configFor(mode string) config.OCRConfig {
	return config.OCRConfig{Mode: mode, Language: "eng", DPI: 150}
}
