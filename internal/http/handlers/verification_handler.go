// Verification HTTP handlers.
//
//   - POST /verification                       (candidate or employer: submit)
//   - GET  /verification                       (candidate or employer: status)
//   - POST /admin/verification/{id}/review     (admin: approve or reject)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/services"
)

// ReviewVerificationRequest is the admin decision.
type ReviewVerificationRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject" example:"approve"`
	Notes    string `json:"notes,omitempty" example:"Document matches company register"`
}

// SubmitVerification godoc
// @ID          submitVerification
// @Summary     Submit a verification request
// @Description Opens a review for the caller's profile. Only one request may be pending at a time.
// @Tags        Verification
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.VerificationInput  true  "Verification details"
//
// @Success     201  {object} domain.VerificationRequest
// @Failure     400  {object} handlers.ErrorResponse "Invalid input"
// @Failure     404  {object} handlers.ErrorResponse "Profile required"
// @Failure     409  {object} handlers.ErrorResponse "Verification already pending"
// @Router      /verification [post]
func (h *Handlers) SubmitVerification(c *gin.Context) {
	ut, found := userType(c)
	if !found {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only candidates and employers can be verified")
		return
	}
	var in services.VerificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req, err := h.verify.Submit(c.Request.Context(), userID(c), ut, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, req)
}

// GetVerification godoc
// @ID          getVerification
// @Summary     Verification status
// @Description Returns the caller's latest verification request and its audit log.
// @Tags        Verification
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} services.VerificationStatus
// @Failure     404  {object} handlers.ErrorResponse "No verification request"
// @Router      /verification [get]
func (h *Handlers) GetVerification(c *gin.Context) {
	st, err := h.verify.Status(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ReviewVerification godoc
// @ID          reviewVerification
// @Summary     Review a verification request
// @Description Approves or rejects a pending request and updates the profile's verified flag.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true  "Verification request ID"
// @Param       body  body  handlers.ReviewVerificationRequest  true  "Decision"
//
// @Success     200  {object} domain.VerificationRequest
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Request not found"
// @Failure     409  {object} handlers.ErrorResponse "Already reviewed"
// @Router      /admin/verification/{id}/review [post]
func (h *Handlers) ReviewVerification(c *gin.Context) {
	var req ReviewVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "decision must be approve or reject")
		return
	}
	out, err := h.verify.Review(c.Request.Context(), userID(c), c.Param("id"), req.Decision == "approve", req.Notes)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
