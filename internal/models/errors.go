package models

import "errors"

// Error kinds. Components wrap the underlying cause with one of these so callers
// can match on both, e.g. fmt.Errorf("%w: open %s: %w", ErrExtraction, path, err).
var (
	ErrExtraction = errors.New("extraction error")
	ErrEmbedding  = errors.New("embedding error")
	ErrStore      = errors.New("store error")
	ErrGeneration = errors.New("generation error")
)
