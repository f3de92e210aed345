package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/raedjah1/bopmaps-cache/internal/coordinator"
	"github.com/raedjah1/bopmaps-cache/internal/region"
	"github.com/raedjah1/bopmaps-cache/internal/store"
)

const internalServerErrorText = "the server encountered an error and could not process your request"

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate   *validator.Validate
	coord      *coordinator.Coordinator
	downloader *region.Downloader
	regions    *store.Store
}

func NewHandler(v *validator.Validate, coord *coordinator.Coordinator, dl *region.Downloader, regions *store.Store) *Handler {
	return &Handler{
		validate:   v,
		coord:      coord,
		downloader: dl,
		regions:    regions,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}
