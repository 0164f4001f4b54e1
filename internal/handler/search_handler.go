package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragcore-go/internal/model"
	"ragcore-go/internal/service"
	"ragcore-go/pkg/log"
)

// SearchHandler handles semantic search requests.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search handles GET /search.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "q is required"})
		return
	}
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "owner_id is required"})
		return
	}

	topK, err := strconv.Atoi(c.DefaultQuery("top_k", "0"))
	if err != nil || topK < 0 {
		topK = 0
	}

	results, err := h.searchService.Search(c.Request.Context(), query, ownerID, topK)
	if err != nil {
		log.Errorf("[SearchHandler] search failed, owner: %s: %v", ownerID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "message": "search unavailable"})
		return
	}

	if results == nil {
		results = []model.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": results})
}
