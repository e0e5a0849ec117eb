package models

import "fmt"

// Page is one OCR'd page of a source document
type Page struct {
	Number int
	Text   string
}

// Chunk represents a fixed-size window of a page's text
type Chunk struct {
	Source string
	Page   int
	Index  int
	Text   string
}

// ID returns the record id for the chunk. Re-ingesting the same file with the
// same chunking produces the same ids, so upserts overwrite instead of duplicate.
func (c Chunk) ID() string {
	return RecordID(c.Source, c.Page, c.Index)
}

// RecordID builds the composite id <source>-page-<n>-chunk-<k>
func RecordID(source string, page, chunk int) string {
	return fmt.Sprintf("%s-page-%d-chunk-%d", source, page, chunk)
}

// Metadata is stored alongside every vector
type Metadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Chunk  int    `json:"chunk"`
	Text   string `json:"text"`
}

// Record is the persisted unit in the vector store
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// NewRecord pairs a chunk with its embedding
func NewRecord(c Chunk, values []float32) Record {
	return Record{
		ID:     c.ID(),
		Values: values,
		Metadata: Metadata{
			Source: c.Source,
			Page:   c.Page,
			Chunk:  c.Index,
			Text:   c.Text,
		},
	}
}

// Match is a retrieval result. Metadata is nil when it was not requested.
type Match struct {
	ID       string
	Score    float32
	Metadata *Metadata
}

// ContextText returns the stored chunk text, falling back to the record id
// when the text is missing or empty. Stores decode an absent text field as "",
// so the two cases are not distinguished.
func (m Match) ContextText() string {
	if m.Metadata != nil && m.Metadata.Text != "" {
		return m.Metadata.Text
	}
	return m.ID
}

type PromptResponse struct {
	Query   string
	Answer  string
	Matches []Match
}

// CheckDimension fails with ErrStore when a vector does not match the index
func CheckDimension(id string, values []float32, dim int) error {
	if len(values) != dim {
		return fmt.Errorf("%w: vector %q has %d dimensions, index expects %d", ErrStore, id, len(values), dim)
	}
	return nil
}
