// Contact HTTP handlers.
//
// This file exposes the contact request gate and the contact lifecycle:
//   - POST /contacts                    (employer: request access, 201 or 402)
//   - GET  /contacts                    (employer or candidate: list, paginated)
//   - POST /contacts/{id}/respond       (candidate: accept or decline)
//   - POST /admin/contacts/expire       (admin: expire stale pending contacts)
//
// Idempotency:
// POST /contacts honors Idempotency-Key. When a previous result exists for
// (user, "contacts", key) the handler returns that contact with the original
// status code and sets `Idempotency-Replayed: true`; the gate does not run
// again, so a retried request never spends a second credit.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/http/middleware"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
	"github.com/tbourn/noticeboard-backend/internal/services"
)

// IdempotencyScopeContacts scopes Idempotency-Key records for POST /contacts.
const IdempotencyScopeContacts = "contacts"

//
// DTOs
//

// ContactRequest is the JSON payload for requesting access to a candidate.
type ContactRequest struct {
	// CandidateID is the target candidate.
	CandidateID string `json:"candidate_id" binding:"required" example:"cand_42"`
	// ContactType is one of view, message, interview_request, offer.
	ContactType domain.ContactType `json:"contact_type" binding:"required" example:"message"`
	// Message is required for message contacts and ignored otherwise.
	Message string `json:"message,omitempty" example:"We'd love to talk about a backend role."`
}

// ContactDecisionResponse is the gate's answer. On 402 it also carries the
// error envelope fields so generic clients can branch on the code.
type ContactDecisionResponse struct {
	RequestID string           `json:"request_id,omitempty"`
	Code      string           `json:"code,omitempty" example:"payment_required"`
	Message   string           `json:"message,omitempty"`
	Outcome   services.Outcome `json:"outcome" example:"allowed"`
	Contact   *domain.Contact  `json:"contact"`
	Price     *pricing.Price   `json:"price,omitempty"`
}

// ListContactsResponse wraps a page of contacts and pagination information.
type ListContactsResponse struct {
	Contacts   []domain.Contact `json:"contacts"`
	Pagination Pagination       `json:"pagination"`
}

// RespondContactRequest is the candidate's answer to a pending contact.
type RespondContactRequest struct {
	Action string `json:"action" binding:"required,oneof=accept decline" example:"accept"`
}

// ExpireContactsRequest optionally overrides the inactivity cutoff.
type ExpireContactsRequest struct {
	// OlderThan is a Go duration such as "336h".
	OlderThan string `json:"older_than,omitempty" example:"336h"`
}

// ExpireContactsResponse reports how many contacts were expired.
type ExpireContactsResponse struct {
	Expired int64 `json:"expired"`
}

//
// Helpers
//

// decisionResponse renders a gate decision with its status code.
func decisionResponse(c *gin.Context, dec *services.Decision) (int, ContactDecisionResponse) {
	resp := ContactDecisionResponse{
		Outcome: dec.Outcome,
		Contact: dec.Contact,
		Price:   dec.Price,
	}
	if dec.Outcome == services.OutcomePaymentRequired {
		resp.RequestID = c.Writer.Header().Get(middleware.HeaderRequestID)
		resp.Code = ErrCodePaymentRequired
		resp.Message = "payment required to contact this candidate"
		return http.StatusPaymentRequired, resp
	}
	return http.StatusCreated, resp
}

// replayContact serves a stored result. It reports false when the recorded
// contact cannot be loaded, in which case the request is processed normally.
func (h *Handlers) replayContact(c *gin.Context, rp middleware.Replay) bool {
	ct, err := h.contacts.GetForEmployer(c.Request.Context(), userID(c), rp.ResourceID)
	if err != nil {
		return false
	}
	dec := &services.Decision{Outcome: services.OutcomeAllowed, Contact: ct}
	if rp.Status == http.StatusPaymentRequired {
		dec.Outcome = services.OutcomePaymentRequired
		if p, err := pricing.ContactPrice(ct.ContactType); err == nil {
			dec.Price = &p
		}
	}
	status, resp := decisionResponse(c, dec)
	c.Header("Idempotency-Replayed", "true")
	ok(c, status, resp)
	return true
}

//
// Handlers
//

// RequestContact godoc
// @ID          requestContact
// @Summary     Request contact with a candidate
// @Description Spends one pooled credit and opens a pending contact (201), or records the request as
// @Description awaiting payment and returns the one-time price (402). Offers always require payment.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Contacts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.ContactRequest  true  "Contact request"
//
// @Success     201  {object}  handlers.ContactDecisionResponse  "Allowed"
// @Success     402  {object}  handlers.ContactDecisionResponse  "Payment required"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate or employer profile not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate open contact"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /contacts [post]
func (h *Handlers) RequestContact(c *gin.Context) {
	if rp, found := middleware.GetReplay(c); found && h.replayContact(c, rp) {
		return
	}

	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "candidate_id and contact_type required")
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)
	dec, err := h.contacts.Request(ctx, services.RequestInput{
		EmployerID:  uid,
		CandidateID: req.CandidateID,
		Type:        domain.ContactType(strings.ToLower(strings.TrimSpace(string(req.ContactType)))),
		Message:     req.Message,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	status, resp := decisionResponse(c, dec)

	// Idempotency (store path) – best effort.
	if key, found := middleware.GetIdempotencyKey(c); found && h.idem != nil {
		if err := h.idem.Record(ctx, uid, IdempotencyScopeContacts, key, dec.Contact.ID, status); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	ok(c, status, resp)
}

// ListContacts godoc
// @ID          listContacts
// @Summary     List my contacts (paginated)
// @Description Employers see every contact they requested; candidates see contacts addressed to them,
// @Description excluding requests still awaiting the employer's payment. Employer lists support a weak
// @Description ETag via If-None-Match and may return 304.
// @Tags        Contacts
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListContactsResponse
// @Header      200  {string} ETag  "Weak ETag for current result (employers)"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /contacts [get]
func (h *Handlers) ListContacts(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	var (
		items []domain.Contact
		total int64
		err   error
	)
	if ut, _ := userType(c); ut == domain.UserCandidate {
		items, total, err = h.contacts.ListForCandidate(ctx, uid, page, pageSize)
	} else {
		// ETag pre-check (best effort).
		if count, maxTS, serr := h.contacts.Stats(ctx, uid); serr == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"contacts:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
		items, total, err = h.contacts.ListForEmployer(ctx, uid, page, pageSize)
	}
	if err != nil {
		failErr(c, err)
		return
	}

	ok(c, http.StatusOK, ListContactsResponse{
		Contacts:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// RespondContact godoc
// @ID          respondContact
// @Summary     Accept or decline a contact
// @Description Moves a pending contact addressed to the current candidate to accepted or declined.
// @Tags        Contacts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true  "Contact ID (UUID)"  format(uuid)
// @Param       body  body  handlers.RespondContactRequest  true  "Answer"
//
// @Success     200  {object} domain.Contact
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Contact not found"
// @Failure     409  {object} handlers.ErrorResponse "Contact not pending"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /contacts/{id}/respond [post]
func (h *Handlers) RespondContact(c *gin.Context) {
	contactID := c.Param("id")
	if _, err := uuid.Parse(contactID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact id must be a UUID")
		return
	}
	var req RespondContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be accept or decline")
		return
	}

	ct, err := h.contacts.Respond(c.Request.Context(), userID(c), contactID, req.Action == "accept")
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ct)
}

// ExpireContacts godoc
// @ID          expireContacts
// @Summary     Expire stale pending contacts
// @Description Moves pending contacts with no activity for older_than (default CONTACT_EXPIRY) to expired.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ExpireContactsRequest  false  "Cutoff override"
//
// @Success     200  {object} handlers.ExpireContactsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/contacts/expire [post]
func (h *Handlers) ExpireContacts(c *gin.Context) {
	var req ExpireContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	olderThan := h.opts.ContactExpiry
	if s := strings.TrimSpace(req.OlderThan); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "older_than must be a positive duration")
			return
		}
		olderThan = d
	}

	n, err := h.contacts.ExpireStale(c.Request.Context(), olderThan)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ExpireContactsResponse{Expired: n})
}
