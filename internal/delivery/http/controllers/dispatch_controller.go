package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"letterpress/internal/delivery/http/helpers"
	"letterpress/internal/domain"
)

// SendEmailRequest is the request body for POST /admin/email/send.
// With TestEmail set, the rendered newsletter goes to that single address and
// nothing is recorded. Force re-dispatches a post whose newsletter already
// went out.
type SendEmailRequest struct {
	PostID    string `json:"postId"`
	TestEmail string `json:"testEmail"`
	Force     bool   `json:"force"`
}

// Validate implements Validator.
func (s SendEmailRequest) Validate() []string {
	var errs []string
	if s.PostID == "" {
		errs = append(errs, "postId is required")
	}
	if s.TestEmail != "" && !emailRegex.MatchString(s.TestEmail) {
		errs = append(errs, "testEmail format is invalid")
	}
	return errs
}

// RunSummarySuccessResponse is the success response envelope for GET /cron/publish (200).
type RunSummarySuccessResponse struct {
	Data  *domain.RunSummary `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type DispatchController struct {
	Logger      *slog.Logger
	Publisher   domain.PublisherService
	DispatchLog domain.DispatchLogRepository
}

func NewDispatchController(logger *slog.Logger, publisher domain.PublisherService, dispatchLog domain.DispatchLogRepository) *DispatchController {
	return &DispatchController{
		Logger:      logger,
		Publisher:   publisher,
		DispatchLog: dispatchLog,
	}
}

// Send godoc
// @Summary Send a post's newsletter
// @Description With test_email set, sends the rendered newsletter to that one address without logging or marking anything. Otherwise publishes the post if needed and dispatches to all active subscribers; set force to re-send a post that already went out. Requires authentication.
// @Tags email
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body SendEmailRequest true "Send parameters"
// @Success 200 {object} helpers.APIResponse "data contains the publish result"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/email/send [post]
func (c *DispatchController) Send(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.TestEmail != "" {
		if err := c.Publisher.SendTest(r.Context(), req.PostID, req.TestEmail); err != nil {
			c.writeDispatchError(w, r, err)
			return
		}
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "test sent", "to": req.TestEmail})
		return
	}
	result, err := c.Publisher.Publish(r.Context(), req.PostID, req.Force)
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// History godoc
// @Summary List dispatch history for a post
// @Description Returns all recorded newsletter dispatch runs for a post, newest first. Requires authentication.
// @Tags email
// @Produce json
// @Security BearerAuth
// @Param postID path string true "Post ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains dispatch log entries"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/posts/{postID}/dispatches [get]
func (c *DispatchController) History(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	if postID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing postID")
		return
	}
	entries, err := c.DispatchLog.ListByPost(r.Context(), postID)
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, entries)
}

// CronPublish godoc
// @Summary Publish every due scheduled post
// @Description Scheduler trigger: publishes each scheduled post whose time has passed and dispatches its newsletter. Failures are reported per post and never abort the run. Authenticated by the shared scheduler secret, not a user token.
// @Tags email
// @Produce json
// @Security CronSecret
// @Success 200 {object} controllers.RunSummarySuccessResponse "data contains the per-post outcomes"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /cron/publish [get]
func (c *DispatchController) CronPublish(w http.ResponseWriter, r *http.Request) {
	summary, err := c.Publisher.RunDue(r.Context())
	if err != nil {
		c.writeDispatchError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, summary)
}

func (c *DispatchController) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrPostNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "post not found")
	case errors.Is(err, domain.ErrConflict):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "post changed concurrently, retry")
	default:
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
	}
}
