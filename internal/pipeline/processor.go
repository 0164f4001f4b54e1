// Package pipeline orchestrates document ingestion: extract, chunk, embed
// and store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragcore-go/internal/chunker"
	"ragcore-go/internal/config"
	"ragcore-go/internal/extractor"
	"ragcore-go/internal/model"
	"ragcore-go/internal/store"
	"ragcore-go/pkg/embedding"
	"ragcore-go/pkg/log"
)

// ErrEmptyDocument reports extracted text below the minimum informativeness
// threshold. Distinct from a parse failure so callers can message the user
// differently.
var ErrEmptyDocument = errors.New("document has no extractable content")

// previewChars is the length of the caller-side preview of the first chunk.
const previewChars = 100

// Invalidator is implemented by stores whose cached index must be dropped
// after a write, such as the flat-file fallback.
type Invalidator interface {
	Invalidate()
}

// Processor runs the ingestion sequence for one document and writes the
// resulting fragments to every configured store, so the fallback tier has
// content when the primary is unreachable.
type Processor struct {
	embeddingClient embedding.Client
	stores          []store.FragmentStore
	cfg             config.IngestConfig
}

// NewProcessor creates a Processor writing to the given stores in order.
func NewProcessor(embeddingClient embedding.Client, stores []store.FragmentStore, cfg config.IngestConfig) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		stores:          stores,
		cfg:             cfg,
	}
}

// Ingest converts one document into embedded fragments. All-or-nothing at
// the document level: an embedding failure aborts before anything is
// written, and a re-ingest of the same (owner, file) replaces the previous
// fragments instead of duplicating them.
func (p *Processor) Ingest(ctx context.Context, data []byte, mediaType, fileName, ownerID string) (*model.IngestResult, error) {
	log.Infof("[Processor] ingesting document, file: %s, mediaType: %s, owner: %s, bytes: %d",
		fileName, mediaType, ownerID, len(data))

	// 1. Extract plain text.
	text, err := extractor.Extract(data, mediaType)
	if err != nil {
		log.Errorf("[Processor] extraction failed, file: %s, owner: %s: %v", fileName, ownerID, err)
		return nil, err
	}

	// 2. Validate the document carries enough text to be worth indexing.
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < p.cfg.MinDocumentChars {
		log.Warnf("[Processor] document below minimum length, file: %s, owner: %s, chars: %d",
			fileName, ownerID, len([]rune(trimmed)))
		return nil, ErrEmptyDocument
	}
	log.Infof("[Processor] extraction succeeded, file: %s, chars: %d", fileName, len([]rune(trimmed)))

	// 3. Chunk with the sliding window.
	chunks, err := chunker.Split(trimmed, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}

	// 4. Drop fragments below the informativeness threshold; they waste
	// embedding calls and pollute the index with noise.
	kept := chunks[:0]
	for _, chunk := range chunks {
		if len([]rune(strings.TrimSpace(chunk))) >= p.cfg.MinChunkChars {
			kept = append(kept, chunk)
		}
	}
	chunks = kept
	if len(chunks) == 0 {
		log.Warnf("[Processor] no chunks survived filtering, file: %s, owner: %s", fileName, ownerID)
		return nil, ErrEmptyDocument
	}
	log.Infof("[Processor] chunking produced %d fragments, file: %s", len(chunks), fileName)

	// 5. Embed every chunk in one batched call. A partial failure aborts
	// the whole document before anything is persisted.
	vectors, err := p.embeddingClient.Embed(ctx, chunks)
	if err != nil {
		log.Errorf("[Processor] embedding failed, file: %s, owner: %s: %v", fileName, ownerID, err)
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	// 6. Build fragments with deterministic ids and typed metadata.
	ingestedAt := time.Now()
	fragments := make([]model.Fragment, 0, len(chunks))
	for i, chunk := range chunks {
		fragments = append(fragments, model.Fragment{
			ID:        model.FragmentID(ownerID, fileName, ingestedAt, i),
			Content:   chunk,
			Source:    fileName,
			Embedding: vectors[i],
			Metadata: model.FragmentMetadata{
				OwnerID:    ownerID,
				FileName:   fileName,
				ChunkIndex: i,
			},
			CreatedAt: ingestedAt,
		})
	}

	// 7. Replace the document's previous fragments, then write the new
	// ones. Every configured store receives the write so a degraded tier
	// can still answer when the primary is down.
	for _, st := range p.stores {
		if err := st.DeleteBySource(ctx, ownerID, fileName); err != nil {
			log.Warnf("[Processor] failed to clear previous fragments, store: %s, file: %s, owner: %s: %v",
				st.Name(), fileName, ownerID, err)
		}
		if err := st.Upsert(ctx, fragments); err != nil {
			log.Errorf("[Processor] upsert failed, store: %s, file: %s, owner: %s: %v",
				st.Name(), fileName, ownerID, err)
			return nil, fmt.Errorf("store %s: %w", st.Name(), err)
		}
		if inv, ok := st.(Invalidator); ok {
			inv.Invalidate()
		}
	}

	preview := chunks[0]
	if runes := []rune(preview); len(runes) > previewChars {
		preview = string(runes[:previewChars])
	}

	log.Infof("[Processor] document ingested, file: %s, owner: %s, fragments: %d", fileName, ownerID, len(fragments))
	return &model.IngestResult{Chunks: len(fragments), FirstChunk: preview}, nil
}

// IngestStructured ingests source material that is already plain text with
// meaningful paragraph boundaries, such as curated markdown. Fragments are
// cut on blank lines instead of the sliding window and carry the given
// title.
func (p *Processor) IngestStructured(ctx context.Context, text, title, fileName, ownerID string) (*model.IngestResult, error) {
	log.Infof("[Processor] ingesting structured source, file: %s, owner: %s", fileName, ownerID)

	chunks := chunker.SplitParagraphs(text, p.cfg.MinParagraphChars)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	vectors, err := p.embeddingClient.Embed(ctx, chunks)
	if err != nil {
		log.Errorf("[Processor] embedding failed, file: %s, owner: %s: %v", fileName, ownerID, err)
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	ingestedAt := time.Now()
	fragments := make([]model.Fragment, 0, len(chunks))
	for i, chunk := range chunks {
		fragments = append(fragments, model.Fragment{
			ID:        model.FragmentID(ownerID, fileName, ingestedAt, i),
			Content:   chunk,
			Source:    fileName,
			Embedding: vectors[i],
			Metadata: model.FragmentMetadata{
				OwnerID:    ownerID,
				FileName:   fileName,
				ChunkIndex: i,
				Title:      title,
			},
			CreatedAt: ingestedAt,
		})
	}

	for _, st := range p.stores {
		if err := st.DeleteBySource(ctx, ownerID, fileName); err != nil {
			log.Warnf("[Processor] failed to clear previous fragments, store: %s, file: %s, owner: %s: %v",
				st.Name(), fileName, ownerID, err)
		}
		if err := st.Upsert(ctx, fragments); err != nil {
			return nil, fmt.Errorf("store %s: %w", st.Name(), err)
		}
		if inv, ok := st.(Invalidator); ok {
			inv.Invalidate()
		}
	}

	preview := chunks[0]
	if runes := []rune(preview); len(runes) > previewChars {
		preview = string(runes[:previewChars])
	}
	return &model.IngestResult{Chunks: len(fragments), FirstChunk: preview}, nil
}

// Delete removes an owner's fragments, optionally restricted to one source
// file, from every configured store. Administrative hook.
func (p *Processor) Delete(ctx context.Context, ownerID, source string) error {
	for _, st := range p.stores {
		var err error
		if source == "" {
			err = st.DeleteByOwner(ctx, ownerID)
		} else {
			err = st.DeleteBySource(ctx, ownerID, source)
		}
		if err != nil {
			return fmt.Errorf("store %s: %w", st.Name(), err)
		}
		if inv, ok := st.(Invalidator); ok {
			inv.Invalidate()
		}
	}
	return nil
}
