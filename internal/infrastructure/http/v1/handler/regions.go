package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/dto"
	"github.com/raedjah1/bopmaps-cache/internal/region"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func (h *Handler) DownloadRegion(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	var req dto.DownloadRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("malformed region request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := boundsFromRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The size limit is the caller's responsibility; the downloader runs
	// whatever it is handed.
	if err := h.downloader.CheckSize(b, req.ZoomLevels); err != nil {
		if errors.Is(err, region.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		h.RespondWithInternalServerError(c)
		return
	}

	// wait=true runs the download inline and returns the finished region.
	// The default detaches it; clients poll GET /regions for progress.
	if c.Query("wait") == "true" {
		reg, err := h.downloader.Download(c.Request.Context(), req.Name, b, req.ZoomLevels, nil)
		if err != nil {
			l.Error("region download failed", "name", req.Name, "error", err)
			h.RespondWithInternalServerError(c)
			return
		}
		h.RespondWithJSON(c, http.StatusOK, "region downloaded", dto.RegionResponse{Region: reg})
		return
	}

	l.Info("region download requested",
		"name", req.Name, "estimated_bytes", h.downloader.EstimateSize(b, req.ZoomLevels))

	go func() {
		reg, err := h.downloader.Download(context.Background(), req.Name, b, req.ZoomLevels, nil)
		if err != nil {
			l.Error("region download failed", "name", req.Name, "error", err)
			return
		}
		l.Info("region download complete", "region", reg.ID, "size_bytes", reg.SizeBytes)
	}()

	h.RespondWithJSON(c, http.StatusAccepted, "region download started", nil)
}

func (h *Handler) ListRegions(c *gin.Context) {
	switch c.Query("sort") {
	case "most_accessed":
		h.RespondWithJSON(c, http.StatusOK, "got regions",
			dto.RegionsResponse{Regions: h.regions.GetMostAccessed(20)})
	case "recent":
		h.RespondWithJSON(c, http.StatusOK, "got regions",
			dto.RegionsResponse{Regions: h.regions.GetRecentlyAccessed(20)})
	default:
		h.RespondWithJSON(c, http.StatusOK, "got regions",
			dto.RegionsResponse{Regions: h.regions.GetRegions()})
	}
}

func (h *Handler) GetRegion(c *gin.Context) {
	id := c.Param("id")

	reg, ok := h.regions.GetRegion(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "region not found"})
		return
	}

	if err := h.regions.LogAccess(id); err != nil {
		log, _ := c.Get("logger")
		log.(logger.Logger).Warn("failed to log region access", "region", id, "error", err)
	}

	h.RespondWithJSON(c, http.StatusOK, "got region", dto.RegionResponse{Region: reg})
}

func (h *Handler) DeleteRegion(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	id := c.Param("id")

	if _, ok := h.regions.GetRegion(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "region not found"})
		return
	}

	if err := h.regions.DeleteRegion(id); err != nil {
		l.Error("failed to delete region", "region", id, "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "region deleted", nil)
}

func boundsFromRequest(req dto.DownloadRegionRequest) (geo.Bounds, error) {
	if req.CenterLat != nil && req.CenterLon != nil && req.RadiusKm != nil {
		if *req.RadiusKm <= 0 {
			return geo.Bounds{}, errors.New("radius_km must be positive")
		}
		return geo.FromCenter(*req.CenterLat, *req.CenterLon, *req.RadiusKm), nil
	}

	if req.MinLat == nil || req.MinLon == nil || req.MaxLat == nil || req.MaxLon == nil {
		return geo.Bounds{}, errors.New("either bounds or center with radius_km is required")
	}

	b := geo.Bounds{MinLat: *req.MinLat, MinLon: *req.MinLon, MaxLat: *req.MaxLat, MaxLon: *req.MaxLon}
	if !b.Valid() {
		return geo.Bounds{}, errors.New("invalid bounds")
	}
	return b, nil
}
