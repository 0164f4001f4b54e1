// Package flatfile implements the fragment store as a single JSON file
// with an in-process cache and a brute-force cosine scan. It is strictly a
// degraded fallback for environments without the vector-capable backend.
package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ragcore-go/internal/model"
	"ragcore-go/internal/store"
	"ragcore-go/pkg/log"
)

// record is the on-disk shape of one fragment.
type record struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	FileName   string    `json:"fileName"`
	Title      string    `json:"title,omitempty"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store owns the file and its cache. The cache is loaded lazily once and
// shared read-only by concurrent queries; Invalidate forces a reload.
// Writes from other processes are not observed until Invalidate is called.
type Store struct {
	path      string
	dimension int

	mu      sync.RWMutex
	loaded  bool
	records []record
}

// New creates a flat-file store persisting to path.
func New(path string, dimension int) *Store {
	return &Store{path: path, dimension: dimension}
}

func (s *Store) Name() string { return "flatfile" }

// Invalidate drops the cached index so the next operation reloads the file.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.records = nil
}

// ensureLoaded reads the file into the cache if it is not resident yet.
// Callers must hold the write lock.
func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.records = nil
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read fragment file: %w", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse fragment file: %w", err)
	}
	s.records = records
	s.loaded = true
	log.Infof("[FlatFileStore] loaded %d fragments from %s", len(records), s.path)
	return nil
}

// flush writes the cache back to disk via a temp file and rename, so a
// crash mid-write never leaves a torn file behind.
func (s *Store) flush() error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("marshal fragments: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fragment dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "fragments-*.json")
	if err != nil {
		return fmt.Errorf("create temp fragment file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write fragment file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close fragment file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Upsert replaces records by id and appends the rest, then rewrites the
// file.
func (s *Store) Upsert(ctx context.Context, fragments []model.Fragment) error {
	for i, frag := range fragments {
		if err := store.ValidateVector(frag.Embedding, s.dimension); err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	byID := make(map[string]int, len(s.records))
	for i, rec := range s.records {
		byID[rec.ID] = i
	}
	for _, frag := range fragments {
		rec := record{
			ID:         frag.ID,
			OwnerID:    frag.Metadata.OwnerID,
			FileName:   frag.Metadata.FileName,
			Title:      frag.Metadata.Title,
			ChunkIndex: frag.Metadata.ChunkIndex,
			Content:    frag.Content,
			Embedding:  frag.Embedding,
			CreatedAt:  frag.CreatedAt,
		}
		if i, ok := byID[frag.ID]; ok {
			s.records[i] = rec
		} else {
			byID[frag.ID] = len(s.records)
			s.records = append(s.records, rec)
		}
	}
	return s.flush()
}

// Query brute-force scans the owner's records by cosine similarity.
// Results keep insertion order for equal scores.
func (s *Store) Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]store.Match, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	var matches []store.Match
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if len(rec.Embedding) != len(vector) {
			// Never compare vectors of mismatched length.
			continue
		}
		matches = append(matches, store.Match{
			Fragment: model.Fragment{
				ID:      rec.ID,
				Content: rec.Content,
				Source:  rec.FileName,
				Metadata: model.FragmentMetadata{
					OwnerID:    rec.OwnerID,
					FileName:   rec.FileName,
					ChunkIndex: rec.ChunkIndex,
					Title:      rec.Title,
				},
				CreatedAt: rec.CreatedAt,
			},
			Score: store.CosineSimilarity(rec.Embedding, vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByOwner removes every fragment of an owner.
func (s *Store) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.deleteWhere(func(rec record) bool {
		return rec.OwnerID == ownerID
	})
}

// DeleteBySource removes an owner's fragments originating from one file.
func (s *Store) DeleteBySource(ctx context.Context, ownerID, source string) error {
	return s.deleteWhere(func(rec record) bool {
		return rec.OwnerID == ownerID && rec.FileName == source
	})
}

func (s *Store) deleteWhere(match func(record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	kept := s.records[:0]
	for _, rec := range s.records {
		if !match(rec) {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return s.flush()
}
