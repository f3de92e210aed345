package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func (h *Handler) Tile(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "x should be integer",
		})
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "y should be integer",
		})
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "z should be integer",
		})
		return
	}

	id := geo.TileID{Z: z, X: x, Y: y}
	if !id.Valid() {
		l.Warn("tile coordinates out of range", "tile", id.String())
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tile coordinates out of range",
		})
		return
	}

	pri := fetcher.PriorityNormal
	if c.Query("priority") == "high" {
		pri = fetcher.PriorityHigh
	}

	data, err := h.coord.GetTile(c.Request.Context(), id, pri)
	if err != nil {
		l.Error("failed to get tile", "tile", id.String(), "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}
