// Package handler contains the HTTP controllers.
package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"ragcore-go/internal/extractor"
	"ragcore-go/internal/pipeline"
	"ragcore-go/pkg/embedding"
	"ragcore-go/pkg/log"
)

// DocumentHandler handles document ingestion and deletion requests.
type DocumentHandler struct {
	processor *pipeline.Processor
}

// NewDocumentHandler creates a new DocumentHandler instance.
func NewDocumentHandler(processor *pipeline.Processor) *DocumentHandler {
	return &DocumentHandler{processor: processor}
}

// Ingest handles POST /documents/ingest. The owner id is supplied by the
// caller; authentication is the gateway's concern, not this service's.
func (h *DocumentHandler) Ingest(c *gin.Context) {
	ownerID := c.PostForm("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "owner_id is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("[DocumentHandler] failed to open uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "failed to read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("[DocumentHandler] failed to read uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "failed to read file"})
		return
	}

	mediaType := c.PostForm("media_type")
	if mediaType == "" {
		mediaType = detectMediaType(fileHeader.Filename)
	}

	result, err := h.processor.Ingest(c.Request.Context(), data, mediaType, fileHeader.Filename, ownerID)
	if err != nil {
		status, message := ingestErrorStatus(err)
		log.Warnf("[DocumentHandler] ingest failed, file: %s, owner: %s: %v", fileHeader.Filename, ownerID, err)
		c.JSON(status, gin.H{"code": status, "message": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}

// Delete handles DELETE /documents, removing an owner's fragments,
// optionally restricted to one source file.
func (h *DocumentHandler) Delete(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "owner_id is required"})
		return
	}
	source := c.Query("source")

	if err := h.processor.Delete(c.Request.Context(), ownerID, source); err != nil {
		log.Error("[DocumentHandler] delete failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// ingestErrorStatus maps the ingestion error taxonomy onto HTTP statuses.
func ingestErrorStatus(err error) (int, string) {
	var providerErr *embedding.ProviderError
	switch {
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported media type"
	case errors.Is(err, extractor.ErrParseFailure):
		return http.StatusUnprocessableEntity, "unreadable file"
	case errors.Is(err, pipeline.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, "document has no extractable content"
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, "embedding provider failed"
	default:
		return http.StatusInternalServerError, "ingestion failed"
	}
}

// detectMediaType infers the media type from the filename extension.
func detectMediaType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return extractor.MediaTypePDF
	case ".docx":
		return extractor.MediaTypeDOCX
	case ".txt", ".md":
		return extractor.MediaTypePlainText
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(fileName)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
