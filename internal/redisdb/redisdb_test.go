package redisdb

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"testing"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

func TestEncodeVector(t *testing.T) {
	b := encodeVector([]float32{1.5, -2})
	if len(b) != 8 {
		t.Fatalf("len = %d", len(b))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[4:])); got != -2 {
		t.Fatalf("second value = %v", got)
	}
}

func TestKNNQuery(t *testing.T) {
	got := knnQuery("exam-notes", 5)
	want := `(@namespace:{exam\-notes})=>[KNN 5 @vector $vec AS score]`
	if got != want {
		t.Fatalf("query = %s, want %s", got, want)
	}
}

func TestEscapeTag(t *testing.T) {
	cases := map[string]string{
		"notes":      "notes",
		"chapter_1":  "chapter_1",
		"a b.c":      `a\ b\.c`,
		"ünïcode-42": `ünïcode\-42`,
	}
	for in, want := range cases {
		if got := escapeTag(in); got != want {
			t.Errorf("escapeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSearchResult(t *testing.T) {
	reply := []any{
		int64(2),
		"exam-prep:notes:n.pdf-page-1-chunk-0",
		[]any{"id", "n.pdf-page-1-chunk-0", "source", "n.pdf", "page", "1", "chunk", "0", "text", "velocity", "score", "0.1"},
		"exam-prep:notes:n.pdf-page-2-chunk-3",
		[]any{"id", "n.pdf-page-2-chunk-3", "source", "n.pdf", "page", "2", "chunk", "3", "text", "", "score", "0.5"},
	}
	matches, err := parseSearchResult(reply, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	if matches[0].ID != "n.pdf-page-1-chunk-0" || math.Abs(float64(matches[0].Score)-0.9) > 1e-6 {
		t.Errorf("first = %+v", matches[0])
	}
	if matches[0].Metadata.Text != "velocity" || matches[1].Metadata.Chunk != 3 {
		t.Errorf("metadata = %+v, %+v", matches[0].Metadata, matches[1].Metadata)
	}
	if matches[1].ContextText() != "n.pdf-page-2-chunk-3" {
		t.Errorf("fallback context = %q", matches[1].ContextText())
	}

	empty, err := parseSearchResult([]any{int64(0)}, true)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty = %v, %v", empty, err)
	}
	if _, err := parseSearchResult("OK", true); err == nil {
		t.Fatal("expected error for non-array reply")
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := NewStore(config.RedisConfig{Addr: "localhost:0"}, config.IndexConfig{Name: "exam-prep", Dimension: 3})
	defer s.Close()
	recs := []models.Record{models.NewRecord(models.Chunk{Source: "n.pdf", Page: 1}, []float32{1})}
	if err := s.Upsert(context.Background(), "notes", recs); !errors.Is(err, models.ErrStore) {
		t.Fatalf("err = %v", err)
	}
}

// Runs against Redis Stack when REDIS_ADDR is set
func TestStoreIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s := NewStore(config.RedisConfig{Addr: addr}, config.IndexConfig{Name: "study-rag-test", Dimension: 3})
	defer s.Close()
	defer s.client.Do(ctx, "FT.DROPINDEX", "study-rag-test", "DD")

	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	recs := []models.Record{
		models.NewRecord(models.Chunk{Source: "a.pdf", Page: 1, Index: 0, Text: "x"}, []float32{1, 0, 0}),
		models.NewRecord(models.Chunk{Source: "a.pdf", Page: 1, Index: 1, Text: "y"}, []float32{0, 1, 0}),
	}
	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, "notes", recs); err != nil {
			t.Fatal(err)
		}
	}
	if n, err := s.Count(ctx, "notes"); err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	matches, err := s.Query(ctx, []float32{1, 0, 0}, 5, "notes", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "a.pdf-page-1-chunk-0" {
		t.Fatalf("matches = %+v", matches)
	}
}
