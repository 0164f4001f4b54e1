// Package service contains the query-side business logic.
package service

import (
	"context"
	"fmt"
	"sort"

	"ragcore-go/internal/config"
	"ragcore-go/internal/model"
	"ragcore-go/internal/store"
	"ragcore-go/pkg/embedding"
	"ragcore-go/pkg/log"
)

// SearchService answers natural-language queries with ranked fragments.
type SearchService interface {
	Search(ctx context.Context, query, ownerID string, topK int) ([]model.SearchResult, error)
}

// searchService tries a ranked list of backends in order. A failing
// backend is logged and skipped; the error surfaces only when every
// backend has failed. Low-relevance fragments are worse than no answer,
// so anything below MinScore is dropped.
type searchService struct {
	embeddingClient embedding.Client
	backends        []store.FragmentStore
	cfg             config.SearchConfig
}

// NewSearchService creates a SearchService over the given backends,
// ordered from most to least preferred.
func NewSearchService(embeddingClient embedding.Client, backends []store.FragmentStore, cfg config.SearchConfig) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		backends:        backends,
		cfg:             cfg,
	}
}

// Search embeds the query, ranks the owner's fragments by cosine
// similarity and returns at most topK results above the relevance floor.
// An empty result is valid when nothing clears the floor.
func (s *searchService) Search(ctx context.Context, query, ownerID string, topK int) ([]model.SearchResult, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	log.Infof("[SearchService] search, owner: %s, topK: %d", ownerID, topK)

	queryVector, err := s.embeddingClient.EmbedQuery(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] query embedding failed, owner: %s: %v", ownerID, err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	matches, err := s.queryBackends(ctx, ownerID, queryVector, topK)
	if err != nil {
		return nil, err
	}

	// Relevance floor, then stable sort best first. Backends already
	// order their own results; the sort merges nothing here beyond
	// guaranteeing descending scores with ties kept in storage order.
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= s.cfg.MinScore {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}

	results := make([]model.SearchResult, 0, len(filtered))
	for _, m := range filtered {
		title := m.Fragment.Metadata.Title
		if title == "" {
			title = m.Fragment.Source
		}
		results = append(results, model.SearchResult{
			Title:   title,
			Content: m.Fragment.Content,
			Source:  m.Fragment.Source,
			Score:   m.Score,
		})
	}

	log.Infof("[SearchService] search finished, owner: %s, results: %d", ownerID, len(results))
	return results, nil
}

// queryBackends walks the ranked backends and returns the first
// successful answer. Failures are fail-soft: logged, then the next tier
// is tried.
func (s *searchService) queryBackends(ctx context.Context, ownerID string, vector []float32, topK int) ([]store.Match, error) {
	var lastErr error
	for _, backend := range s.backends {
		matches, err := backend.Query(ctx, ownerID, vector, topK)
		if err != nil {
			log.Warnf("[SearchService] backend %s failed, trying next: %v", backend.Name(), err)
			lastErr = err
			continue
		}
		return matches, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all fragment store backends failed: %w", lastErr)
	}
	return nil, fmt.Errorf("no fragment store backend configured")
}
