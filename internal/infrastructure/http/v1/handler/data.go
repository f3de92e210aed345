package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raedjah1/bopmaps-cache/internal/coordinator"
	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/dto"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func (h *Handler) GetData(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var req dto.DataRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		l.Warn("malformed data query", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed query parameters"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dt := payload.DataType(req.Type)
	if !dt.Valid() || dt == payload.TypeTile {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data type"})
		return
	}

	b := geo.Bounds{MinLat: req.MinLat, MinLon: req.MinLon, MaxLat: req.MaxLat, MaxLon: req.MaxLon}
	if !b.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bounds"})
		return
	}

	p, err := h.coord.GetData(c.Request.Context(), dt, b, req.Zoom)
	if err != nil {
		l.Error("failed to get data", "type", dt, "bounds", b.Key(), "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	resp := dto.DataResponse{
		Type:    req.Type,
		Payload: p.Geometry,
		Found:   !p.IsZero(),
	}
	h.RespondWithJSON(c, http.StatusOK, "got data", resp)
}

func (h *Handler) StoreData(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var req dto.StoreDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("malformed store request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dt := payload.DataType(req.Type)
	if !dt.Valid() || dt == payload.TypeTile {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data type"})
		return
	}

	b := geo.Bounds{MinLat: req.MinLat, MinLon: req.MinLon, MaxLat: req.MaxLat, MaxLon: req.MaxLon}
	if !b.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bounds"})
		return
	}

	h.coord.StoreData(c.Request.Context(), dt, b, req.Zoom, payload.Geometry(req.Payload))
	h.RespondWithJSON(c, http.StatusOK, "stored", nil)
}

func (h *Handler) HasData(c *gin.Context) {
	var req dto.DataRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed query parameters"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dt := payload.DataType(req.Type)
	if !dt.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data type"})
		return
	}

	b := geo.Bounds{MinLat: req.MinLat, MinLon: req.MinLon, MaxLat: req.MaxLat, MaxLon: req.MaxLon}
	exists := h.coord.HasData(c.Request.Context(), dt, b, req.Zoom)
	h.RespondWithJSON(c, http.StatusOK, "checked", dto.ExistsResponse{Exists: exists})
}

func (h *Handler) Prefetch(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var req dto.PrefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("malformed prefetch request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b := geo.Bounds{MinLat: req.MinLat, MinLon: req.MinLon, MaxLat: req.MaxLat, MaxLon: req.MaxLon}
	if !b.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bounds"})
		return
	}

	types := make([]payload.DataType, 0, len(req.DataTypes))
	for _, s := range req.DataTypes {
		types = append(types, payload.DataType(s))
	}

	pri := fetcher.PriorityNormal
	switch req.Priority {
	case "high":
		pri = fetcher.PriorityHigh
	case "low":
		pri = fetcher.PriorityLow
	}

	h.coord.Prefetch(c.Request.Context(), coordinator.PrefetchRequest{
		Bounds:    b,
		DataTypes: types,
		MinZoom:   req.MinZoom,
		MaxZoom:   req.MaxZoom,
		Priority:  pri,
	})
	h.RespondWithJSON(c, http.StatusAccepted, "prefetch queued", nil)
}
