package parser

import (
	"iter"

	"study-rag/internal/models"
)

// Chunks splits page text into consecutive windows of size characters.
// The last window may be shorter and empty text yields nothing. Windows never
// overlap, so joining them in order gives back the page text.
func Chunks(page models.Page, source string, size int) iter.Seq[models.Chunk] {
	if size <= 0 {
		size = models.DefaultChunkSize
	}
	return func(yield func(models.Chunk) bool) {
		text := page.Text
		for index := 0; text != ""; index++ {
			end := windowEnd(text, size)
			c := models.Chunk{
				Source: source,
				Page:   page.Number,
				Index:  index,
				Text:   text[:end],
			}
			if !yield(c) {
				return
			}
			text = text[end:]
		}
	}
}

// windowEnd returns the byte offset just past the first size runes of s
func windowEnd(s string, size int) int {
	n := 0
	for i := range s {
		if n == size {
			return i
		}
		n++
	}
	return len(s)
}

// ChunkPages collects the chunks of every page
func ChunkPages(pages []models.Page, source string, size int) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range pages {
		for c := range Chunks(p, source, size) {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

