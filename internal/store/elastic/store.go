// Package elastic implements the fragment store on Elasticsearch using a
// dense_vector kNN search. It is an optional backend ranked between the
// relational primary and the flat-file fallback.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"ragcore-go/internal/config"
	"ragcore-go/internal/model"
	"ragcore-go/internal/store"
	"ragcore-go/pkg/log"
)

// Store is the Elasticsearch-backed fragment store.
type Store struct {
	client    *elasticsearch.Client
	index     string
	dimension int
}

// esFragment is the document shape stored in the index.
type esFragment struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	Title      string    `json:"title,omitempty"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"created_at"`
}

// New connects to Elasticsearch and creates the fragments index with a
// cosine dense_vector mapping if it does not exist yet.
func New(cfg config.ElasticsearchConfig, dimension int) (*Store, error) {
	if dimension <= 0 {
		dimension = 1536
	}
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}

	s := &Store{client: client, index: cfg.IndexName, dimension: dimension}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Name() string { return "elasticsearch" }

func (s *Store) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.index})
	if err != nil {
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ElasticStore] index '%s' already exists", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index existence: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"owner_id": { "type": "keyword" },
				"source": { "type": "keyword" },
				"content": { "type": "text" },
				"chunk_index": { "type": "integer" },
				"title": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"created_at": { "type": "date" }
			}
		}
	}`, s.dimension)

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned an error creating index: %s", res.String())
	}

	log.Infof("[ElasticStore] index '%s' created", s.index)
	return nil
}

// Upsert indexes fragments one by one using the fragment id as document
// id, so re-ingestion replaces instead of duplicating.
func (s *Store) Upsert(ctx context.Context, fragments []model.Fragment) error {
	for i, frag := range fragments {
		if err := store.ValidateVector(frag.Embedding, s.dimension); err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}

		doc := esFragment{
			ID:         frag.ID,
			OwnerID:    frag.Metadata.OwnerID,
			Source:     frag.Source,
			Content:    frag.Content,
			ChunkIndex: frag.Metadata.ChunkIndex,
			Title:      frag.Metadata.Title,
			Vector:     frag.Embedding,
			CreatedAt:  frag.CreatedAt,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal fragment %s: %w", frag.ID, err)
		}

		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: frag.ID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("index fragment %s: %w", frag.ID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("elasticsearch rejected fragment %s: %s", frag.ID, res.Status())
		}
	}
	return nil
}

// Query runs a kNN search filtered to the owner. Elasticsearch scores
// cosine kNN as (1 + cos) / 2, so the score is mapped back to plain
// cosine similarity before returning.
func (s *Store) Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]store.Match, error) {
	if err := store.ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"owner_id": ownerID},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("encode knn query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.New("elasticsearch returned an error: " + res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esFragment `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode elasticsearch response: %w", err)
	}

	matches := make([]store.Match, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		frag := model.Fragment{
			ID:      hit.Source.ID,
			Content: hit.Source.Content,
			Source:  hit.Source.Source,
			Metadata: model.FragmentMetadata{
				OwnerID:    hit.Source.OwnerID,
				FileName:   hit.Source.Source,
				ChunkIndex: hit.Source.ChunkIndex,
				Title:      hit.Source.Title,
			},
			CreatedAt: hit.Source.CreatedAt,
		}
		matches = append(matches, store.Match{Fragment: frag, Score: hit.Score*2 - 1})
	}
	return matches, nil
}

// DeleteByOwner removes every fragment of an owner.
func (s *Store) DeleteByOwner(ctx context.Context, ownerID string) error {
	return s.deleteByQuery(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"owner_id": ownerID},
		},
	})
}

// DeleteBySource removes an owner's fragments originating from one file.
func (s *Store) DeleteBySource(ctx context.Context, ownerID, source string) error {
	return s.deleteByQuery(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"owner_id": ownerID}},
					{"term": map[string]interface{}{"source": source}},
				},
			},
		},
	})
}

func (s *Store) deleteByQuery(ctx context.Context, query map[string]interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("encode delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.New("elasticsearch returned an error: " + res.Status())
	}
	return nil
}
