package handler

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/echogram/api/internal/middleware"
	"github.com/echogram/api/internal/model"
	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/internal/store"
	"github.com/echogram/api/pkg/response"
)

const maxImageSize = 10 * 1024 * 1024 // 10MB

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type PostHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewPostHandler(svc *service.GenerationService, v *validator.Validate) *PostHandler {
	return &PostHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/posts
// @Summary      Create post
// @Description  Submit an image, color, and squiggle gesture; audio generation runs in the background
// @Tags         Posts
// @Accept       multipart/form-data
// @Produce      json
// @Param        image           formData file   true "Source image (JPEG, PNG, GIF, WebP; max 10MB)"
// @Param        color_hex       formData string true "Selected color as #RRGGBB"
// @Param        squiggle_points formData string true "JSON array of {x,y,t} gesture points"
// @Success      202 {object} model.SubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      413 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/posts [post]
func (h *PostHandler) Create(c *fiber.Ctx) error {
	req, image, contentType, errResp := h.parseSubmission(c)
	if errResp != nil {
		return errResp
	}

	result, err := h.service.SubmitPost(c.Context(), middleware.GetUserID(c), req, image, contentType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}

// Feed handles GET /api/posts
// @Summary      Global feed
// @Tags         Posts
// @Produce      json
// @Param        page     query int false "Page number"    default(1)
// @Param        per_page query int false "Posts per page" default(20)
// @Success      200 {object} model.FeedResponse
// @Router       /api/posts [get]
func (h *PostHandler) Feed(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	result, err := h.service.Feed(c.Context(), page, perPage)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Get handles GET /api/posts/:postId
// @Summary      Post detail with comments
// @Tags         Posts
// @Produce      json
// @Param        postId path string true "Post ID"
// @Success      200 {object} model.PostDetail
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/posts/{postId} [get]
func (h *PostHandler) Get(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	result, err := h.service.GetPost(c.Context(), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Status handles GET /api/posts/:postId/status
// @Summary      Post generation status
// @Tags         Posts
// @Produce      json
// @Param        postId path string true "Post ID"
// @Success      200 {object} model.StatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/posts/{postId}/status [get]
func (h *PostHandler) Status(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Recreate handles POST /api/posts/:postId/recreate
// @Summary      Regenerate a post's audio and morph
// @Description  Discards previous artifacts (including comments) and queues a fresh attempt
// @Tags         Posts
// @Produce      json
// @Param        postId path string true "Post ID"
// @Success      202 {object} model.SubmitResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/posts/{postId}/recreate [post]
func (h *PostHandler) Recreate(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	result, err := h.service.Recreate(c.Context(), middleware.GetUserID(c), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}

// Delete handles DELETE /api/posts/:postId
// @Summary      Delete post
// @Description  Removes the post, its comments, and all stored artifacts
// @Tags         Posts
// @Produce      json
// @Param        postId path string true "Post ID"
// @Success      200 {object} model.DeleteResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/posts/{postId} [delete]
func (h *PostHandler) Delete(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	result, err := h.service.Delete(c.Context(), middleware.GetUserID(c), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// parseSubmission parses the shared multipart form of post and comment
// creation: an image file, a color_hex field, and a squiggle_points JSON
// array.
func (h *PostHandler) parseSubmission(c *fiber.Ctx) (*model.SubmitRequest, []byte, string, error) {
	colorHex := c.FormValue("color_hex")
	if colorHex == "" {
		return nil, nil, "", response.ValidationError(c, "color_hex is required", nil)
	}

	rawPoints := c.FormValue("squiggle_points")
	if rawPoints == "" {
		return nil, nil, "", response.ValidationError(c, "squiggle_points is required", nil)
	}
	var points []model.SquigglePoint
	if err := json.Unmarshal([]byte(rawPoints), &points); err != nil {
		return nil, nil, "", response.ValidationError(c, "squiggle_points must be a JSON array of {x,y,t}", nil)
	}

	req := &model.SubmitRequest{
		ColorHex:       colorHex,
		SquigglePoints: points,
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, nil, "", response.ValidationError(c, "Invalid submission", err.Error())
	}

	file, err := c.FormFile("image")
	if err != nil {
		return nil, nil, "", response.ValidationError(c, "Image file is required", nil)
	}
	if file.Size > maxImageSize {
		return nil, nil, "", response.PayloadTooLarge(c, "Image exceeds 10MB limit")
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, nil, "", response.ValidationError(c, "Invalid image type. Supported: JPEG, PNG, GIF, WebP", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return nil, nil, "", response.ServiceError(c, "Failed to open image")
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, "", response.ServiceError(c, "Failed to read image")
	}
	return req, image, contentType, nil
}

// mapServiceError translates service and store errors to HTTP responses.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "You do not own this item")
	case errors.Is(err, service.ErrConflict):
		return response.Conflict(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
