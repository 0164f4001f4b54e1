// Package pgvector implements the fragment store on PostgreSQL with the
// pgvector extension. Similarity is computed server side with the cosine
// distance operator and the owner filter is pushed into SQL.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"ragcore-go/internal/model"
	"ragcore-go/internal/store"
	"ragcore-go/pkg/log"
)

// indexRowThreshold decides the ANN index type at build time. Below it an
// HNSW index is built because it needs no training data; at or above it an
// IVFFlat index gives better throughput. Checked once in EnsureIndex, not
// per query.
const indexRowThreshold = 10

// Store is the vector-capable primary backend.
type Store struct {
	db        *gorm.DB
	dimension int
}

// New creates the store, ensures the schema exists and builds the ANN
// index appropriate for the current corpus size.
func New(db *gorm.DB, dimension int) (*Store, error) {
	if dimension <= 0 {
		dimension = 1536
	}
	s := &Store{db: db, dimension: dimension}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}
	if err := s.EnsureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("pgvector ensure index: %w", err)
	}
	return s, nil
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fragments (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			source     TEXT NOT NULL,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS fragments_owner_idx ON fragments (owner_id)`,
		`CREATE INDEX IF NOT EXISTS fragments_owner_source_idx ON fragments (owner_id, source)`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndex builds the ANN index over the embedding column. HNSW below
// indexRowThreshold rows, IVFFlat at or above it.
func (s *Store) EnsureIndex(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM fragments`).Scan(&count).Error; err != nil {
		return fmt.Errorf("count fragments: %w", err)
	}

	if count < indexRowThreshold {
		log.Infof("[PgvectorStore] %d fragments, building HNSW index", count)
		return s.db.WithContext(ctx).Exec(
			`CREATE INDEX IF NOT EXISTS fragments_embedding_idx ON fragments USING hnsw (embedding vector_cosine_ops)`,
		).Error
	}

	lists := count / 10
	if lists < 10 {
		lists = 10
	}
	log.Infof("[PgvectorStore] %d fragments, building IVFFlat index with %d lists", count, lists)
	return s.db.WithContext(ctx).Exec(fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS fragments_embedding_idx ON fragments USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists,
	)).Error
}

// Upsert writes or replaces fragments by id. Each fragment is one
// statement, so an individual write is atomic while the batch is not
// required to be.
func (s *Store) Upsert(ctx context.Context, fragments []model.Fragment) error {
	for i, frag := range fragments {
		if err := store.ValidateVector(frag.Embedding, s.dimension); err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}

		metadata, err := json.Marshal(frag.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for fragment %s: %w", frag.ID, err)
		}

		err = s.db.WithContext(ctx).Exec(`
			INSERT INTO fragments (id, owner_id, source, content, embedding, metadata, created_at)
			VALUES (?, ?, ?, ?, ?::vector, ?::jsonb, ?)
			ON CONFLICT (id) DO UPDATE SET
				owner_id   = EXCLUDED.owner_id,
				source     = EXCLUDED.source,
				content    = EXCLUDED.content,
				embedding  = EXCLUDED.embedding,
				metadata   = EXCLUDED.metadata,
				created_at = EXCLUDED.created_at
		`, frag.ID, frag.Metadata.OwnerID, frag.Source, frag.Content,
			encodeVector(frag.Embedding), string(metadata), frag.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("upsert fragment %s: %w", frag.ID, err)
		}
	}
	return nil
}

// Query returns the topK fragments of the owner closest to vector, best
// first. Similarity is 1 - cosine distance.
func (s *Store) Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]store.Match, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}
	queryVec := encodeVector(vector)

	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, owner_id, source, content, metadata, created_at,
		       1 - (embedding <=> ?::vector) AS score
		FROM fragments
		WHERE owner_id = ?
		ORDER BY embedding <=> ?::vector ASC, id ASC
		LIMIT ?
	`, queryVec, ownerID, queryVec, topK).Rows()
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var matches []store.Match
	for rows.Next() {
		var (
			frag         model.Fragment
			ownerCol     string
			metadataJSON string
			score        float64
		)
		if err := rows.Scan(&frag.ID, &ownerCol, &frag.Source, &frag.Content, &metadataJSON, &frag.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &frag.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for fragment %s: %w", frag.ID, err)
		}
		matches = append(matches, store.Match{Fragment: frag, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity query rows: %w", err)
	}
	return matches, nil
}

// DeleteByOwner removes every fragment of an owner.
func (s *Store) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.db.WithContext(ctx).Exec(`DELETE FROM fragments WHERE owner_id = ?`, ownerID).Error
}

// DeleteBySource removes an owner's fragments originating from one file.
func (s *Store) DeleteBySource(ctx context.Context, ownerID, source string) error {
	return s.db.WithContext(ctx).Exec(`DELETE FROM fragments WHERE owner_id = ? AND source = ?`, ownerID, source).Error
}

// encodeVector renders a vector in pgvector's text format, e.g. [1,0.5,2].
func encodeVector(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
