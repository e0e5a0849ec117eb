package redisdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	fieldVector    = "vector"
	fieldNamespace = "namespace"
	fieldID        = "id"
	fieldSource    = "source"
	fieldPage      = "page"
	fieldChunk     = "chunk"
	fieldText      = "text"
	fieldScore     = "score"
)

// Store keeps vectors as hashes indexed by a RediSearch HNSW index.
// Keys are <index>:<namespace>:<record id>.
type Store struct {
	client *redis.Client
	index  string
	dim    int
}

func NewStore(cfg config.RedisConfig, index config.IndexConfig) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		// FT.* replies are parsed as RESP2 arrays
		Protocol: 2,
	})
	return &Store{client: client, index: index.Name, dim: index.Dimension}
}

func (s *Store) keyPrefix() string { return s.index + ":" }

func (s *Store) key(namespace, id string) string {
	return s.keyPrefix() + namespace + ":" + id
}

// EnsureIndex creates the HNSW index if FT.INFO does not find it
func (s *Store) EnsureIndex(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: failed to connect to redis: %w", models.ErrStore, err)
	}
	if _, err := s.client.Do(ctx, "FT.INFO", s.index).Result(); err == nil {
		return nil
	}

	_, err := s.client.Do(ctx, "FT.CREATE", s.index,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix(),
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldNamespace, "TAG",
		fieldSource, "TAG",
		fieldPage, "NUMERIC",
		fieldChunk, "NUMERIC",
	).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to create index %s: %w", models.ErrStore, s.index, err)
	}
	log.Info().Str("index", s.index).Int("dimension", s.dim).Msg("Created redis vector index")
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, r := range records {
		if err := models.CheckDimension(r.ID, r.Values, s.dim); err != nil {
			return err
		}
		pipe.HSet(ctx, s.key(namespace, r.ID),
			fieldVector, encodeVector(r.Values),
			fieldNamespace, namespace,
			fieldID, r.ID,
			fieldSource, r.Metadata.Source,
			fieldPage, r.Metadata.Page,
			fieldChunk, r.Metadata.Chunk,
			fieldText, r.Metadata.Text,
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: failed to upsert into %s: %w", models.ErrStore, s.index, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string, includeMetadata bool) ([]models.Match, error) {
	if err := models.CheckDimension("query", vector, s.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []models.Match{}, nil
	}

	args := []any{"FT.SEARCH", s.index, knnQuery(namespace, topK),
		"PARAMS", "2", "vec", encodeVector(vector),
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topK),
	}
	if includeMetadata {
		args = append(args, "RETURN", "6", fieldID, fieldSource, fieldPage, fieldChunk, fieldText, fieldScore)
	} else {
		args = append(args, "RETURN", "2", fieldID, fieldScore)
	}
	args = append(args, "DIALECT", "2")

	res, err := s.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %w", models.ErrStore, err)
	}
	matches, err := parseSearchResult(res, includeMetadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStore, err)
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	res, err := s.client.Do(ctx, "FT.SEARCH", s.index, namespaceFilter(namespace),
		"LIMIT", "0", "0", "DIALECT", "2").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count failed: %w", models.ErrStore, err)
	}
	values, ok := res.([]any)
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("%w: unexpected search reply %T", models.ErrStore, res)
	}
	n, _ := values[0].(int64)
	return int(n), nil
}

func (s *Store) Close() error { return s.client.Close() }

func namespaceFilter(namespace string) string {
	return fmt.Sprintf("@%s:{%s}", fieldNamespace, escapeTag(namespace))
}

func knnQuery(namespace string, topK int) string {
	return fmt.Sprintf("(%s)=>[KNN %d @%s $vec AS %s]", namespaceFilter(namespace), topK, fieldVector, fieldScore)
}

// escapeTag backslash-escapes everything RediSearch treats as tag syntax
func escapeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// encodeVector packs the vector as little-endian FLOAT32 bytes
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// parseSearchResult reads a RESP2 FT.SEARCH reply: total, then key/fields pairs.
// The KNN score is a cosine distance and is turned into a similarity.
func parseSearchResult(res any, includeMetadata bool) ([]models.Match, error) {
	values, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected search reply %T", res)
	}
	matches := make([]models.Match, 0, len(values)/2)
	for i := 1; i+1 < len(values); i += 2 {
		fields, ok := values[i+1].([]any)
		if !ok {
			continue
		}
		kv := make(map[string]string, len(fields)/2)
		for j := 0; j+1 < len(fields); j += 2 {
			k, _ := fields[j].(string)
			v, _ := fields[j+1].(string)
			kv[k] = v
		}

		dist, _ := strconv.ParseFloat(kv[fieldScore], 32)
		m := models.Match{ID: kv[fieldID], Score: float32(1 - dist)}
		if includeMetadata {
			page, _ := strconv.Atoi(kv[fieldPage])
			chunk, _ := strconv.Atoi(kv[fieldChunk])
			m.Metadata = &models.Metadata{
				Source: kv[fieldSource],
				Page:   page,
				Chunk:  chunk,
				Text:   kv[fieldText],
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}
