// Pilot feedback HTTP handlers.
//
//   - POST /pilot/feedback  (public: rate the pilot 1..5)
//   - GET  /pilot/feedback  (admin: summary and newest entries)
//
// Submissions are anonymous; the caller states which side of the board they
// use and nothing else is recorded about them.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// PilotFeedbackRequest is the JSON payload for pilot feedback.
type PilotFeedbackRequest struct {
	UserType domain.UserType `json:"user_type" binding:"required" example:"employer"`
	// Rating must be between 1 and 5.
	Rating  int    `json:"rating" binding:"required,min=1,max=5" example:"4"`
	Comment string `json:"comment,omitempty" example:"Search filters are great"`
}

// SubmitPilotFeedback godoc
// @ID          submitPilotFeedback
// @Summary     Leave pilot feedback
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PilotFeedbackRequest  true  "Feedback payload"
//
// @Success     201  {object} domain.PilotFeedback
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /pilot/feedback [post]
func (h *Handlers) SubmitPilotFeedback(c *gin.Context) {
	var req PilotFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_type and a rating of 1 to 5 required")
		return
	}
	ut := domain.UserType(strings.ToLower(strings.TrimSpace(string(req.UserType))))
	fb, err := h.feedback.Submit(c.Request.Context(), ut, req.Rating, req.Comment)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, fb)
}

// PilotFeedbackSummary godoc
// @ID          pilotFeedbackSummary
// @Summary     Pilot feedback summary
// @Description Totals, average rating, counts by user type and rating, and a page of the newest entries.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} services.FeedbackSummary
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Router      /pilot/feedback [get]
func (h *Handlers) PilotFeedbackSummary(c *gin.Context) {
	page, pageSize := clampPagination(c)
	sum, err := h.feedback.Summary(c.Request.Context(), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}
