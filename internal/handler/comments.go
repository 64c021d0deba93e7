package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/echogram/api/internal/middleware"
	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/pkg/response"
)

type CommentHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
	posts     *PostHandler // shared multipart parsing
}

func NewCommentHandler(svc *service.GenerationService, v *validator.Validate, posts *PostHandler) *CommentHandler {
	return &CommentHandler{
		service:   svc,
		validator: v,
		posts:     posts,
	}
}

// Create handles POST /api/posts/:postId/comments
// @Summary      Reply to a post
// @Description  Submit a reply gesture; the reply inherits the parent's bpm, key, and duration. The parent must be ready.
// @Tags         Comments
// @Accept       multipart/form-data
// @Produce      json
// @Param        postId          path     string true "Parent post ID"
// @Param        image           formData file   true "Source image (JPEG, PNG, GIF, WebP; max 10MB)"
// @Param        color_hex       formData string true "Selected color as #RRGGBB"
// @Param        squiggle_points formData string true "JSON array of {x,y,t} gesture points"
// @Success      202 {object} model.SubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/posts/{postId}/comments [post]
func (h *CommentHandler) Create(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	req, image, contentType, errResp := h.posts.parseSubmission(c)
	if errResp != nil {
		return errResp
	}

	result, err := h.service.SubmitComment(c.Context(), middleware.GetUserID(c), postID, req, image, contentType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}

// List handles GET /api/posts/:postId/comments
// @Summary      List a post's replies
// @Tags         Comments
// @Produce      json
// @Param        postId path string true "Parent post ID"
// @Success      200 {object} model.CommentsResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/posts/{postId}/comments [get]
func (h *CommentHandler) List(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	result, err := h.service.Comments(c.Context(), postID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Status handles GET /api/comments/:commentId/status
// @Summary      Comment generation status
// @Tags         Comments
// @Produce      json
// @Param        commentId path string true "Comment ID"
// @Success      200 {object} model.StatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/comments/{commentId}/status [get]
func (h *CommentHandler) Status(c *fiber.Ctx) error {
	commentID := c.Params("commentId")
	if commentID == "" {
		return response.ValidationError(c, "Comment ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), commentID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Recreate handles POST /api/comments/:commentId/recreate
// @Summary      Regenerate a comment's audio
// @Tags         Comments
// @Produce      json
// @Param        commentId path string true "Comment ID"
// @Success      202 {object} model.SubmitResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/comments/{commentId}/recreate [post]
func (h *CommentHandler) Recreate(c *fiber.Ctx) error {
	commentID := c.Params("commentId")
	if commentID == "" {
		return response.ValidationError(c, "Comment ID is required", nil)
	}

	result, err := h.service.Recreate(c.Context(), middleware.GetUserID(c), commentID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}

// Delete handles DELETE /api/posts/:postId/comments/:commentId
// @Summary      Delete comment
// @Tags         Comments
// @Produce      json
// @Param        postId    path string true "Parent post ID"
// @Param        commentId path string true "Comment ID"
// @Success      200 {object} model.DeleteResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/posts/{postId}/comments/{commentId} [delete]
func (h *CommentHandler) Delete(c *fiber.Ctx) error {
	commentID := c.Params("commentId")
	if commentID == "" {
		return response.ValidationError(c, "Comment ID is required", nil)
	}

	result, err := h.service.Delete(c.Context(), middleware.GetUserID(c), commentID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}
