package invoice

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/obs"
)

// maxPayloadBytes bounds the size of a totals request body.
const maxPayloadBytes = 1 << 20

type totalsRequest struct {
	Items    []LineItem `json:"items"`
	Taxes    []TaxRule  `json:"taxes"`
	Discount *Discount  `json:"discount"`
}

type totalsResponse struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Handler exposes the invoice total calculator over HTTP.
type Handler struct{}

// Totals computes subtotal, tax, discount and total for the posted invoice draft.
func (Handler) Totals(w http.ResponseWriter, r *http.Request) {
	var payload totalsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	b := Compute(payload.Items, payload.Taxes, payload.Discount)
	if obs.InvoiceTotalComputations != nil {
		obs.InvoiceTotalComputations.Inc()
	}
	resp := totalsResponse{
		Subtotal: b.Subtotal.InexactFloat64(),
		Tax:      b.Tax.InexactFloat64(),
		Discount: b.Discount.InexactFloat64(),
		Total:    b.Total.InexactFloat64(),
	}
	if !resp.finite() {
		// finite inputs can still multiply past the float64 range
		common.JSONError(w, http.StatusUnprocessableEntity, "OUT_OF_RANGE", "invoice amounts exceed the supported range", nil)
		return
	}
	if err := common.JSON(w, http.StatusOK, map[string]any{"data": resp}); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("invoice_totals_response")
	}
}

func (t totalsResponse) finite() bool {
	for _, v := range []float64{t.Subtotal, t.Tax, t.Discount, t.Total} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
