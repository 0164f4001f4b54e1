// Package store defines the fragment storage contract shared by the
// vector-capable primary backend and its degraded fallbacks.
package store

import (
	"context"

	"ragcore-go/internal/model"
)

// Match pairs a stored fragment with its cosine similarity to a query
// vector. Similarity is 1 - cosine distance, so higher is better.
type Match struct {
	Fragment model.Fragment
	Score    float64
}

// FragmentStore persists fragments and answers nearest-neighbour queries.
//
// Upsert is write-or-replace by fragment id. The batch as a whole need not
// be transactional, but each individual fragment's write is all-or-nothing.
// Query restricts candidates to the given owner; the filter must be applied
// inside the backend, never only client side.
type FragmentStore interface {
	Name() string
	Upsert(ctx context.Context, fragments []model.Fragment) error
	Query(ctx context.Context, ownerID string, vector []float32, topK int) ([]Match, error)
	// DeleteByOwner and DeleteBySource are administrative hooks; the
	// pipeline uses DeleteBySource to make re-ingestion idempotent.
	DeleteByOwner(ctx context.Context, ownerID string) error
	DeleteBySource(ctx context.Context, ownerID, source string) error
}
