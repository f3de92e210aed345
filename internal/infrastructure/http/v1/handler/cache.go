package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/dto"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func (h *Handler) CacheStats(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "got stats", h.coord.Stats())
}

func (h *Handler) ClearCache(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var req dto.ClearCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	if req.Type == "" {
		h.coord.ClearAll(c.Request.Context())
		l.Info("cache cleared")
		h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
		return
	}

	dt := payload.DataType(req.Type)
	if !dt.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data type"})
		return
	}

	h.coord.ClearType(c.Request.Context(), dt)
	l.Info("cache cleared for type", "type", dt)
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}
