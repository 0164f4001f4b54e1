package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore-go/internal/config"
	"ragcore-go/internal/model"
	"ragcore-go/internal/pipeline"
	"ragcore-go/internal/store"
	"ragcore-go/internal/store/flatfile"
)

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (staticEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubSearchService struct {
	results []model.SearchResult
	err     error
}

func (s *stubSearchService) Search(context.Context, string, string, int) ([]model.SearchResult, error) {
	return s.results, s.err
}

func newIngestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := flatfile.New(filepath.Join(t.TempDir(), "fragments.json"), 3)
	processor := pipeline.NewProcessor(staticEmbedder{}, []store.FragmentStore{st}, config.IngestConfig{
		ChunkSize:         800,
		ChunkOverlap:      150,
		MinDocumentChars:  10,
		MinChunkChars:     5,
		MinParagraphChars: 5,
	})

	r := gin.New()
	h := NewDocumentHandler(processor)
	r.POST("/api/v1/documents/ingest", h.Ingest)
	r.DELETE("/api/v1/documents", h.Delete)
	return r
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestIngestHandlerSuccess(t *testing.T) {
	r := newIngestRouter(t)

	body, contentType := multipartBody(t, "notes.txt", "a perfectly reasonable document body", map[string]string{
		"owner_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data model.IngestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Chunks)
	assert.NotEmpty(t, resp.Data.FirstChunk)
}

func TestIngestHandlerMissingOwner(t *testing.T) {
	r := newIngestRouter(t)

	body, contentType := multipartBody(t, "notes.txt", "content", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandlerUnsupportedMediaType(t *testing.T) {
	r := newIngestRouter(t)

	body, contentType := multipartBody(t, "image.png", "not really an image", map[string]string{
		"owner_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestIngestHandlerEmptyDocument(t *testing.T) {
	r := newIngestRouter(t)

	body, contentType := multipartBody(t, "tiny.txt", "x", map[string]string{
		"owner_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSearchHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/search", NewSearchHandler(&stubSearchService{
		results: []model.SearchResult{{Title: "a.txt", Content: "matched", Source: "a.txt", Score: 0.8}},
	}).Search)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=rto&owner_id=alice", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.SearchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "matched", resp.Data[0].Content)
}

func TestSearchHandlerMissingParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/search", NewSearchHandler(&stubSearchService{}).Search)

	for _, target := range []string{"/api/v1/search", "/api/v1/search?q=rto"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestSearchHandlerBackendExhaustion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/search", NewSearchHandler(&stubSearchService{err: errors.New("all backends down")}).Search)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=rto&owner_id=alice", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMediaType("report.PDF"))
	assert.Equal(t, "text/plain", detectMediaType("notes.txt"))
	assert.Equal(t, "text/plain", detectMediaType("README.md"))
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		detectMediaType("contract.docx"))
}
