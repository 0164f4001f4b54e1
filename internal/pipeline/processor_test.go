package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore-go/internal/config"
	"ragcore-go/internal/extractor"
	"ragcore-go/internal/service"
	"ragcore-go/internal/store"
	"ragcore-go/internal/store/flatfile"
)

// keywordEmbedder embeds texts into a tiny fixed space keyed on keywords,
// so similarity between related texts is deterministic in tests.
type keywordEmbedder struct {
	err   error
	calls int
}

func (k *keywordEmbedder) embedOne(text string) []float32 {
	if strings.Contains(text, "RTO") {
		return []float32{1, 0, 0}
	}
	if strings.Contains(text, "Breach") {
		return []float32{0, 1, 0}
	}
	return []float32{0, 0, 1}
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = k.embedOne(text)
	}
	return vectors, nil
}

func (k *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.embedOne(text), nil
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		ChunkSize:         800,
		ChunkOverlap:      150,
		MinDocumentChars:  50,
		MinChunkChars:     10,
		MinParagraphChars: 20,
	}
}

func newTestProcessor(t *testing.T) (*Processor, *flatfile.Store, *keywordEmbedder) {
	t.Helper()
	st := flatfile.New(filepath.Join(t.TempDir(), "fragments.json"), 3)
	embedder := &keywordEmbedder{}
	return NewProcessor(embedder, []store.FragmentStore{st}, testIngestConfig()), st, embedder
}

const policyText = "Section 1 - RTO: 4 hours.\n\nSection 2 - Breach Notification: 72 hours."

func TestIngestShortDocumentIsSingleFragment(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()

	result, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunks)
	assert.True(t, strings.HasPrefix(policyText, result.FirstChunk))

	matches, err := st.Query(ctx, "alice", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Fragment.Metadata.ChunkIndex)
	assert.Equal(t, "policy.txt", matches[0].Fragment.Source)
	assert.Equal(t, "alice", matches[0].Fragment.Metadata.OwnerID)
}

func TestIngestThenSearchReturnsTheFragmentFirst(t *testing.T) {
	p, st, embedder := newTestProcessor(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.NoError(t, err)

	svc := service.NewSearchService(embedder, []store.FragmentStore{st}, config.SearchConfig{TopK: 5, MinScore: 0.3})
	results, err := svc.Search(ctx, "What is the RTO?", "alice", 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "RTO")
	assert.Greater(t, results[0].Score, 0.3)
}

func TestIngestIsIdempotent(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()

	first, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.NoError(t, err)
	second, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)

	// Fragments were replaced, not duplicated.
	matches, err := st.Query(ctx, "alice", []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, matches, first.Chunks)
}

func TestIngestEmptyDocument(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	_, err := p.Ingest(context.Background(), []byte("too short"), "text/plain", "tiny.txt", "alice")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestUnsupportedFormat(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	_, err := p.Ingest(context.Background(), []byte("irrelevant"), "image/png", "pic.png", "alice")
	assert.ErrorIs(t, err, extractor.ErrUnsupportedFormat)
}

func TestIngestEmbeddingFailureWritesNothing(t *testing.T) {
	p, st, embedder := newTestProcessor(t)
	ctx := context.Background()
	embedder.err = errors.New("quota exceeded")

	_, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.Error(t, err)

	matches, qErr := st.Query(ctx, "alice", []float32{1, 0, 0}, 10)
	require.NoError(t, qErr)
	assert.Empty(t, matches)
}

func TestIngestBatchesEmbeddingIntoOneCall(t *testing.T) {
	p, _, embedder := newTestProcessor(t)

	long := strings.Repeat("The RTO for the payment system is four hours. ", 60)
	result, err := p.Ingest(context.Background(), []byte(long), "text/plain", "long.txt", "alice")
	require.NoError(t, err)
	assert.Greater(t, result.Chunks, 1)
	assert.Equal(t, 1, embedder.calls)
}

func TestIngestPreviewIsBounded(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	long := strings.Repeat("All work and no play makes Jack a dull boy. ", 60)
	result, err := p.Ingest(context.Background(), []byte(long), "text/plain", "long.txt", "alice")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(result.FirstChunk)), 100)
}

func TestIngestStructuredSplitsOnParagraphs(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()

	text := "A first paragraph with enough material to keep around.\n\nno\n\nA second paragraph that also clears the length bar easily."
	result, err := p.IngestStructured(ctx, text, "Handbook", "handbook.md", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chunks)

	matches, err := st.Query(ctx, "alice", []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Handbook", matches[0].Fragment.Metadata.Title)
}

func TestDeleteBySourceAndOwner(t *testing.T) {
	p, st, _ := newTestProcessor(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, []byte(policyText), "text/plain", "policy.txt", "alice")
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, "alice", "policy.txt"))
	matches, err := st.Query(ctx, "alice", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
