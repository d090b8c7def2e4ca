// Profile HTTP handlers.
//
//   - PUT/GET /employers/me          (employer)
//   - PUT/GET /candidates/me         (candidate)
//   - GET     /candidates/search     (employer)
//   - PUT     /admin/employers/{id}/tier  (admin: manual tier override)
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/services"
)

// SearchCandidatesResponse wraps a page of candidate cards.
type SearchCandidatesResponse struct {
	Candidates []services.CandidateCard `json:"candidates"`
	Pagination Pagination               `json:"pagination"`
}

// SetTierRequest is the admin tier override payload.
type SetTierRequest struct {
	Tier domain.Tier `json:"tier" binding:"required" example:"premium"`
}

// UpsertEmployer godoc
// @ID          upsertEmployer
// @Summary     Create or update my employer profile
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.EmployerInput  true  "Employer profile"
//
// @Success     200  {object} domain.Employer
// @Failure     400  {object} handlers.ErrorResponse "Invalid profile"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /employers/me [put]
func (h *Handlers) UpsertEmployer(c *gin.Context) {
	var in services.EmployerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	emp, err := h.profiles.UpsertEmployer(c.Request.Context(), userID(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, emp)
}

// GetEmployer godoc
// @ID          getEmployer
// @Summary     Get my employer profile
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} domain.Employer
// @Failure     404  {object} handlers.ErrorResponse "Profile required"
// @Router      /employers/me [get]
func (h *Handlers) GetEmployer(c *gin.Context) {
	emp, err := h.profiles.GetEmployer(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, emp)
}

// SetEmployerTier godoc
// @ID          setEmployerTier
// @Summary     Override an employer's tier
// @Description Changes the tier label only. Credits are granted by subscription payments.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string  true  "Employer ID"
// @Param       body  body  handlers.SetTierRequest  true  "Tier"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid tier"
// @Failure     404  {object} handlers.ErrorResponse "Employer not found"
// @Router      /admin/employers/{id}/tier [put]
func (h *Handlers) SetEmployerTier(c *gin.Context) {
	var req SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tier required")
		return
	}
	tier := domain.Tier(strings.ToLower(strings.TrimSpace(string(req.Tier))))
	if err := h.profiles.SetTier(c.Request.Context(), c.Param("id"), tier); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpsertCandidate godoc
// @ID          upsertCandidate
// @Summary     Create or update my candidate profile
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.CandidateInput  true  "Candidate profile"
//
// @Success     200  {object} domain.Candidate
// @Failure     400  {object} handlers.ErrorResponse "Invalid profile"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /candidates/me [put]
func (h *Handlers) UpsertCandidate(c *gin.Context) {
	var in services.CandidateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cand, err := h.profiles.UpsertCandidate(c.Request.Context(), userID(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cand)
}

// GetCandidate godoc
// @ID          getCandidate
// @Summary     Get my candidate profile
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} domain.Candidate
// @Failure     404  {object} handlers.ErrorResponse "Profile not found"
// @Router      /candidates/me [get]
func (h *Handlers) GetCandidate(c *gin.Context) {
	cand, err := h.profiles.GetCandidate(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cand)
}

// SearchCandidates godoc
// @ID          searchCandidates
// @Summary     Search public candidates
// @Description Filters public candidates by skills, salary ceiling, availability and verification, ranked by
// @Description skill overlap. Cards omit contact details.
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
//
// @Param       skills         query  string  false  "Comma-separated skills"  example(go,postgres)
// @Param       salary_max     query  int     false  "Only candidates whose minimum is at or below this"
// @Param       available_by   query  string  false  "Notice ends by (YYYY-MM-DD or RFC3339)"
// @Param       verified_only  query  bool    false  "Only verified candidates"
// @Param       page           query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.SearchCandidatesResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid query"
// @Router      /candidates/search [get]
func (h *Handlers) SearchCandidates(c *gin.Context) {
	page, pageSize := clampPagination(c)
	q := services.SearchQuery{
		Skills:   splitCSV(c.Query("skills")),
		Page:     page,
		PageSize: pageSize,
	}
	if s := strings.TrimSpace(c.Query("salary_max")); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "salary_max must be a non-negative integer")
			return
		}
		q.SalaryMax = &n
	}
	if s := strings.TrimSpace(c.Query("available_by")); s != "" {
		t, err := parseDate(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "available_by must be YYYY-MM-DD or RFC3339")
			return
		}
		q.AvailableBy = &t
	}
	if s := strings.TrimSpace(c.Query("verified_only")); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "verified_only must be a boolean")
			return
		}
		q.VerifiedOnly = b
	}

	cards, total, err := h.profiles.Search(c.Request.Context(), q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchCandidatesResponse{
		Candidates: cards,
		Pagination: newPagination(page, pageSize, total),
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
