package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"letterpress/internal/delivery/http/helpers"
	"letterpress/internal/domain"
)

// emailRegex matches a simple email format (local@domain with at least one dot in domain).
var emailRegex = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// SubscribeRequest is the request body for POST /subscribers.
type SubscribeRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Validate implements Validator. Returns error messages for required and format rules.
func (s SubscribeRequest) Validate() []string {
	var errs []string
	if s.Email == "" {
		errs = append(errs, "email is required")
	} else if !emailRegex.MatchString(s.Email) {
		errs = append(errs, "email format is invalid")
	}
	if len(s.Name) > 200 {
		errs = append(errs, "name must be at most 200 characters")
	}
	return errs
}

// SubscribeResponse is the response body for POST /subscribers.
type SubscribeResponse struct {
	Outcome domain.SubscribeOutcome `json:"outcome"`
	Message string                  `json:"message"`
}

// SubscribeSuccessResponse is the success response envelope for POST /subscribers.
type SubscribeSuccessResponse struct {
	Data  SubscribeResponse `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListSubscribersResponse is the response body for GET /admin/subscribers.
type ListSubscribersResponse struct {
	Subscribers []*domain.Subscriber   `json:"subscribers"`
	Pagination  helpers.PaginationMeta `json:"pagination"`
}

type SubscriberController struct {
	Logger  *slog.Logger
	Service domain.SubscriberService
	SiteURL string
}

func NewSubscriberController(logger *slog.Logger, svc domain.SubscriberService, siteURL string) *SubscriberController {
	return &SubscriberController{
		Logger:  logger,
		Service: svc,
		SiteURL: siteURL,
	}
}

var outcomeMessages = map[domain.SubscribeOutcome]string{
	domain.SubscribeOutcomeCreated:       "check your inbox to confirm your subscription",
	domain.SubscribeOutcomePending:       "confirmation email re-sent, check your inbox",
	domain.SubscribeOutcomeAlreadyActive: "you are already subscribed",
}

// Subscribe godoc
// @Summary Subscribe to the newsletter
// @Description Registers an email address as a pending subscriber and sends a confirmation email. Re-subscribing a pending or unsubscribed address re-issues tokens and re-sends the confirmation; an active address is a no-op. The response never reveals whether the address already existed beyond the outcome field.
// @Tags subscribers
// @Accept json
// @Produce json
// @Param subscriber body SubscribeRequest true "Subscriber data"
// @Success 201 {object} controllers.SubscribeSuccessResponse "data contains the outcome (201 when newly created, 200 otherwise)"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /subscribers [post]
func (c *SubscriberController) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	outcome, err := c.Service.Subscribe(r.Context(), req.Email, req.Name, req.Source)
	if err != nil {
		if domain.IsValidation(err) {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "subscription failed")
		return
	}
	status := http.StatusOK
	if outcome == domain.SubscribeOutcomeCreated {
		status = http.StatusCreated
	}
	helpers.WriteJSONSuccess(w, status, SubscribeResponse{
		Outcome: outcome,
		Message: outcomeMessages[outcome],
	})
}

// Confirm godoc
// @Summary Confirm a subscription
// @Description Activates a pending subscription by its single-use confirmation token, then redirects to the site. A spent or unknown token redirects to the error variant of the landing page.
// @Tags subscribers
// @Param token path string true "Confirmation token"
// @Success 303 "redirect to the confirmation landing page"
// @Router /subscribers/confirm/{token} [get]
func (c *SubscriberController) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		c.redirect(w, r, "/subscribe/confirmed", "invalid")
		return
	}
	if err := c.Service.Confirm(r.Context(), token); err != nil {
		if !errors.Is(err, domain.ErrInvalidToken) {
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			c.redirect(w, r, "/subscribe/confirmed", "error")
			return
		}
		c.redirect(w, r, "/subscribe/confirmed", "invalid")
		return
	}
	c.redirect(w, r, "/subscribe/confirmed", "")
}

// Unsubscribe godoc
// @Summary Unsubscribe from the newsletter
// @Description Removes an address from the active list by its unsubscribe token, then redirects to the site. Repeating the request is a no-op success.
// @Tags subscribers
// @Param token query string true "Unsubscribe token"
// @Success 303 "redirect to the unsubscribe landing page"
// @Router /subscribers/unsubscribe [get]
func (c *SubscriberController) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		c.redirect(w, r, "/unsubscribed", "invalid")
		return
	}
	if err := c.Service.Unsubscribe(r.Context(), token); err != nil {
		if !errors.Is(err, domain.ErrInvalidToken) {
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			c.redirect(w, r, "/unsubscribed", "error")
			return
		}
		c.redirect(w, r, "/unsubscribed", "invalid")
		return
	}
	c.redirect(w, r, "/unsubscribed", "")
}

func (c *SubscriberController) redirect(w http.ResponseWriter, r *http.Request, path, status string) {
	target := c.SiteURL + path
	if status != "" {
		target += "?status=" + url.QueryEscape(status)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// List godoc
// @Summary List subscribers
// @Description Returns subscribers, optionally filtered by status, with pagination. Requires authentication.
// @Tags subscribers
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status (pending, active, unsubscribed)"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains subscribers and pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/subscribers [get]
func (c *SubscriberController) List(w http.ResponseWriter, r *http.Request) {
	status := domain.SubscriberStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "unknown subscriber status")
		return
	}
	p := helpers.ParsePagination(r)
	subs, total, err := c.Service.List(r.Context(), status, p)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ListSubscribersResponse{
		Subscribers: subs,
		Pagination:  helpers.NewPaginationMeta(p.Page, p.PageSize, total),
	})
}
