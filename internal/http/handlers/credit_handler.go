// Credit HTTP handlers.
//
//   - GET /credits   (employer: pooled balances and the price table)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
)

// CreditsResponse lists the employer's spendable credits next to what each
// contact type costs without them.
type CreditsResponse struct {
	Balances map[domain.CreditType]int64         `json:"balances"`
	Prices   map[domain.ContactType]pricing.Price `json:"prices"`
	Plans    []pricing.Plan                       `json:"plans"`
}

// GetCredits godoc
// @ID          getCredits
// @Summary     Credit balances
// @Description Returns unexpired, unused credits per pooled type (view, message, interview_request),
// @Description the one-time contact prices, and the subscription plans.
// @Tags        Credits
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} handlers.CreditsResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	bal, err := h.ledger.Balances(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CreditsResponse{
		Balances: bal,
		Prices:   pricing.ContactPrices(),
		Plans:    pricing.Plans(),
	})
}
