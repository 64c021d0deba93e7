package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/pkg/response"
)

type MediaHandler struct {
	service *service.GenerationService
}

func NewMediaHandler(svc *service.GenerationService) *MediaHandler {
	return &MediaHandler{service: svc}
}

// Image handles GET /api/images/:id
// @Summary      Entity display image
// @Description  Returns the morphed image when available, otherwise the original upload
// @Tags         Media
// @Produce      image/png
// @Param        id path string true "Entity ID"
// @Success      200 {file} binary
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/images/{id} [get]
func (h *MediaHandler) Image(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "ID is required", nil)
	}

	data, contentType, err := h.service.GetImage(c.Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(data)
}

// Audio handles GET /api/audio/:id
// @Summary      Entity generated audio
// @Tags         Media
// @Produce      audio/mpeg
// @Param        id path string true "Entity ID"
// @Success      200 {file} binary
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/audio/{id} [get]
func (h *MediaHandler) Audio(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "ID is required", nil)
	}

	data, contentType, err := h.service.GetAudio(c.Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	c.Set(fiber.HeaderAcceptRanges, "bytes")
	return c.Send(data)
}
