package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"letterpress/internal/delivery/http/helpers"
	"letterpress/internal/delivery/http/middleware"
	"letterpress/internal/domain"
)

// PostRequest is the request body for POST /admin/posts and PUT /admin/posts/{postID}.
type PostRequest struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Excerpt      string     `json:"excerpt"`
	BodyHTML     string     `json:"body_html"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// Validate implements Validator. Deep validation happens in the service; this
// catches what is wrong at the protocol level.
func (p PostRequest) Validate() []string {
	var errs []string
	if p.Title == "" {
		errs = append(errs, "title is required")
	}
	if p.Status != "" && !domain.PostStatus(p.Status).Valid() {
		errs = append(errs, "status must be one of draft, scheduled, published, archived")
	}
	return errs
}

func (p PostRequest) toInput() domain.PostInput {
	return domain.PostInput{
		Title:        p.Title,
		Slug:         p.Slug,
		Excerpt:      p.Excerpt,
		BodyHTML:     p.BodyHTML,
		Status:       domain.PostStatus(p.Status),
		ScheduledFor: p.ScheduledFor,
	}
}

// TransitionRequest is the request body for POST /admin/posts/{postID}/transition.
type TransitionRequest struct {
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// Validate implements Validator.
func (t TransitionRequest) Validate() []string {
	var errs []string
	if t.Status == "" {
		errs = append(errs, "status is required")
	} else if !domain.PostStatus(t.Status).Valid() {
		errs = append(errs, "status must be one of draft, scheduled, published, archived")
	}
	return errs
}

// PostSuccessResponse is the success response envelope for single-post endpoints.
type PostSuccessResponse struct {
	Data  *domain.Post      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListPostsResponse is the response body for post listing endpoints.
type ListPostsResponse struct {
	Posts      []*domain.Post         `json:"posts"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

type PostController struct {
	Logger    *slog.Logger
	Posts     domain.PostService
	Publisher domain.PublisherService
}

func NewPostController(logger *slog.Logger, posts domain.PostService, publisher domain.PublisherService) *PostController {
	return &PostController{
		Logger:    logger,
		Posts:     posts,
		Publisher: publisher,
	}
}

// writePostError maps service errors for post endpoints to API responses.
func (c *PostController) writePostError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrPostNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "post not found")
	case errors.Is(err, domain.ErrSlugTaken):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "slug already in use")
	case errors.Is(err, domain.ErrConflict):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "post changed concurrently, retry")
	default:
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
	}
}

// Create godoc
// @Summary Create a post
// @Description Creates a post. Status defaults to draft; a missing slug is derived from the title. Creating directly as published stamps published_at but sends no email. Requires authentication.
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param post body PostRequest true "Post data"
// @Success 201 {object} controllers.PostSuccessResponse "data contains the created post"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (slug taken)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts [post]
func (c *PostController) Create(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	post, err := c.Posts.Create(r.Context(), req.toInput())
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, post)
}

// Update godoc
// @Summary Update a post
// @Description Replaces the editable fields of a post. Lifecycle state is not updated here; use the transition or publish endpoints. Requires authentication.
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postID path string true "Post ID (UUID)"
// @Param post body PostRequest true "Post data"
// @Success 200 {object} controllers.PostSuccessResponse "data contains the updated post"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (slug taken)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts/{postID} [put]
func (c *PostController) Update(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	if postID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing postID")
		return
	}
	var req PostRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	post, err := c.Posts.Update(r.Context(), postID, req.toInput())
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, post)
}

// GetByID godoc
// @Summary Get a post by ID
// @Description Returns a post in any lifecycle state, unsanitized, for editing. Requires authentication.
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postID path string true "Post ID (UUID)"
// @Success 200 {object} controllers.PostSuccessResponse "data contains the post"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts/{postID} [get]
func (c *PostController) GetByID(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	if postID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing postID")
		return
	}
	post, err := c.Posts.GetByID(r.Context(), postID)
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, post)
}

// AdminList godoc
// @Summary List posts for the editor
// @Description Returns posts in any lifecycle state, optionally filtered by status, newest first. Requires authentication.
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status (draft, scheduled, published, archived)"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains posts and pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts [get]
func (c *PostController) AdminList(w http.ResponseWriter, r *http.Request) {
	c.list(w, r, false)
}

// PublicList godoc
// @Summary List published posts
// @Description Returns published posts with sanitized content, newest first. Drafts, scheduled, and archived posts are never included.
// @Tags posts
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains posts and pagination"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /posts [get]
func (c *PostController) PublicList(w http.ResponseWriter, r *http.Request) {
	c.list(w, r, true)
}

func (c *PostController) list(w http.ResponseWriter, r *http.Request, publicOnly bool) {
	status := domain.PostStatus(r.URL.Query().Get("status"))
	p := helpers.ParsePagination(r)
	posts, total, err := c.Posts.List(r.Context(), status, publicOnly, p)
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ListPostsResponse{
		Posts:      posts,
		Pagination: helpers.NewPaginationMeta(p.Page, p.PageSize, total),
	})
}

// GetBySlug godoc
// @Summary Get a published post by slug
// @Description Returns a published post with sanitized content for the public page. Non-published posts answer 404.
// @Tags posts
// @Produce json
// @Param slug path string true "Post slug"
// @Success 200 {object} controllers.PostSuccessResponse "data contains the post"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /posts/{slug} [get]
func (c *PostController) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing slug")
		return
	}
	post, err := c.Posts.GetPublishedBySlug(r.Context(), slug)
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, post)
}

// Publish godoc
// @Summary Publish a post and dispatch its newsletter
// @Description Moves a draft or scheduled post to published and sends the newsletter to all active subscribers, unless it was already sent. published_at is stamped on first publish only. Requires authentication.
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postID path string true "Post ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains the post and, when a dispatch ran, its report"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (archived post)"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts/{postID}/publish [post]
func (c *PostController) Publish(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	if postID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing postID")
		return
	}
	result, err := c.Publisher.Publish(r.Context(), postID, false)
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// Transition godoc
// @Summary Change a post's lifecycle state
// @Description Applies an unpublish, schedule, or archive transition. Publishing is rejected here; it must use the publish endpoint so the newsletter dispatch is never skipped. Requires authentication.
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postID path string true "Post ID (UUID)"
// @Param body body TransitionRequest true "Target status"
// @Success 200 {object} controllers.PostSuccessResponse "data contains the updated post"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (state changed concurrently)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts/{postID}/transition [post]
func (c *PostController) Transition(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	if postID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing postID")
		return
	}
	var req TransitionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	post, err := c.Publisher.Transition(r.Context(), postID, domain.PostStatus(req.Status), req.ScheduledFor)
	if err != nil {
		c.writePostError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, post)
}
