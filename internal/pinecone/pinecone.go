package pinecone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"study-rag/internal/config"
	"study-rag/internal/models"
)

const (
	readyPollInterval = 2 * time.Second
	readyTimeout      = 2 * time.Minute
)

// indexAdmin is the control-plane subset of *pinecone.Client
type indexAdmin interface {
	ListIndexes(ctx context.Context) ([]*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
}

// indexConn is the data-plane subset of *pinecone.IndexConnection
type indexConn interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// Store talks to a serverless Pinecone index. Clients are created on first
// use, so a missing API key shows up as an error from the first call.
type Store struct {
	cfg   config.PineconeConfig
	index config.IndexConfig

	newAdmin func() (indexAdmin, error)
	connect  func(admin indexAdmin, host, namespace string) (indexConn, error)

	mu    sync.Mutex
	admin indexAdmin
	host  string
	conns map[string]indexConn
}

func NewStore(cfg config.PineconeConfig, index config.IndexConfig) *Store {
	return &Store{
		cfg:   cfg,
		index: index,
		newAdmin: func() (indexAdmin, error) {
			return pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
		},
		connect: func(admin indexAdmin, host, namespace string) (indexConn, error) {
			pc, ok := admin.(*pinecone.Client)
			if !ok {
				return nil, errors.New("unexpected pinecone client type")
			}
			return pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
		},
		conns: map[string]indexConn{},
	}
}

func (s *Store) client() (indexAdmin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin != nil {
		return s.admin, nil
	}
	admin, err := s.newAdmin()
	if err != nil {
		return nil, fmt.Errorf("%w: pinecone client: %w", models.ErrStore, err)
	}
	s.admin = admin
	return admin, nil
}

// EnsureIndex creates the serverless index when it is not listed yet and
// waits for it to become ready.
func (s *Store) EnsureIndex(ctx context.Context) error {
	admin, err := s.client()
	if err != nil {
		return err
	}
	indexes, err := admin.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("%w: list indexes: %w", models.ErrStore, err)
	}
	for _, idx := range indexes {
		if idx.Name == s.index.Name {
			log.Debug().Str("index", idx.Name).Str("host", idx.Host).Msg("Pinecone index exists")
			s.setHost(idx.Host)
			return nil
		}
	}

	log.Info().Str("index", s.index.Name).Int("dimension", s.index.Dimension).
		Str("cloud", s.cfg.Cloud).Str("region", s.cfg.Region).Msg("Creating pinecone index")
	idx, err := admin.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      s.index.Name,
		Dimension: int32(s.index.Dimension),
		Metric:    pinecone.IndexMetric(s.index.Metric),
		Cloud:     pinecone.Cloud(s.cfg.Cloud),
		Region:    s.cfg.Region,
	})
	if err != nil {
		return fmt.Errorf("%w: create index %s: %w", models.ErrStore, s.index.Name, err)
	}
	return s.waitReady(ctx, admin, idx)
}

func (s *Store) waitReady(ctx context.Context, admin indexAdmin, idx *pinecone.Index) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	for idx.Status == nil || !idx.Status.Ready {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: index %s not ready: %w", models.ErrStore, s.index.Name, ctx.Err())
		case <-time.After(readyPollInterval):
		}
		var err error
		idx, err = admin.DescribeIndex(ctx, s.index.Name)
		if err != nil {
			return fmt.Errorf("%w: describe index %s: %w", models.ErrStore, s.index.Name, err)
		}
	}
	s.setHost(idx.Host)
	return nil
}

func (s *Store) setHost(host string) {
	s.mu.Lock()
	s.host = host
	s.mu.Unlock()
}

// conn returns the data-plane connection for namespace, resolving the index
// host on first use
func (s *Store) conn(ctx context.Context, namespace string) (indexConn, error) {
	admin, err := s.client()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[namespace]; ok {
		return c, nil
	}
	if s.host == "" {
		idx, err := admin.DescribeIndex(ctx, s.index.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: describe index %s: %w", models.ErrStore, s.index.Name, err)
		}
		s.host = idx.Host
	}
	c, err := s.connect(admin, s.host, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", models.ErrStore, s.host, err)
	}
	s.conns[namespace] = c
	return c, nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, r := range records {
		if err := models.CheckDimension(r.ID, r.Values, s.index.Dimension); err != nil {
			return err
		}
		meta, err := toStruct(r.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata for %s: %w", models.ErrStore, r.ID, err)
		}
		vectors = append(vectors, &pinecone.Vector{Id: r.ID, Values: r.Values, Metadata: meta})
	}

	c, err := s.conn(ctx, namespace)
	if err != nil {
		return err
	}
	n, err := c.UpsertVectors(ctx, vectors)
	if err != nil {
		return fmt.Errorf("%w: upsert into %s/%s: %w", models.ErrStore, s.index.Name, namespace, err)
	}
	log.Debug().Uint32("upserted", n).Str("namespace", namespace).Msg("Upserted vectors")
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, namespace string, includeMetadata bool) ([]models.Match, error) {
	if err := models.CheckDimension("query", vector, s.index.Dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []models.Match{}, nil
	}
	c, err := s.conn(ctx, namespace)
	if err != nil {
		return nil, err
	}
	res, err := c.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: includeMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s/%s: %w", models.ErrStore, s.index.Name, namespace, err)
	}

	matches := make([]models.Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		match := models.Match{ID: m.Vector.Id, Score: m.Score}
		if includeMetadata && m.Vector.Metadata != nil {
			match.Metadata = fromStruct(m.Vector.Metadata)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	c, err := s.conn(ctx, namespace)
	if err != nil {
		return 0, err
	}
	stats, err := c.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: index stats: %w", models.ErrStore, err)
	}
	if ns, ok := stats.Namespaces[namespace]; ok && ns != nil {
		return int(ns.VectorCount), nil
	}
	return 0, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for ns, c := range s.conns {
		errs = append(errs, c.Close())
		delete(s.conns, ns)
	}
	return errors.Join(errs...)
}

func toStruct(m models.Metadata) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"source": m.Source,
		"page":   m.Page,
		"chunk":  m.Chunk,
		"text":   m.Text,
	})
}

func fromStruct(s *structpb.Struct) *models.Metadata {
	f := s.GetFields()
	return &models.Metadata{
		Source: f["source"].GetStringValue(),
		Page:   int(f["page"].GetNumberValue()),
		Chunk:  int(f["chunk"].GetNumberValue()),
		Text:   f["text"].GetStringValue(),
	}
}
