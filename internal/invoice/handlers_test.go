package invoice_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/invoice"
)

func TestTotalsHandler(t *testing.T) {
	body := `{"items":[{"quantity":2,"unitPrice":50}],"taxes":[{"rate":10}],"discount":{"type":"fixed","value":5}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/total", strings.NewReader(body))
	rr := httptest.NewRecorder()

	invoice.Handler{}.Totals(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Subtotal float64 `json:"subtotal"`
			Tax      float64 `json:"tax"`
			Discount float64 `json:"discount"`
			Total    float64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 100.0, resp.Data.Subtotal)
	require.Equal(t, 10.0, resp.Data.Tax)
	require.Equal(t, 5.0, resp.Data.Discount)
	require.Equal(t, 105.0, resp.Data.Total)
}

func TestTotalsHandlerRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/total", strings.NewReader(`{"items":`))
	rr := httptest.NewRecorder()

	invoice.Handler{}.Totals(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "BAD_REQUEST")
}

func TestTotalsHandlerTreatsOverflowingNumbersAsZero(t *testing.T) {
	for _, quantity := range []string{`"1e400"`, `"1e20000000"`, `1e400`} {
		body := `{"items":[{"quantity":` + quantity + `,"unitPrice":1},{"quantity":1,"unitPrice":20}]}`
		rr := httptest.NewRecorder()
		invoice.Handler{}.Totals(rr, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/total", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, rr.Code, quantity)
		var resp struct {
			Data struct {
				Total float64 `json:"total"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), quantity)
		require.Equal(t, 20.0, resp.Data.Total, quantity)
	}
}

func TestTotalsHandlerRejectsTotalsBeyondFloatRange(t *testing.T) {
	body := `{"items":[{"quantity":"1e300","unitPrice":"1e300"}]}`
	rr := httptest.NewRecorder()
	invoice.Handler{}.Totals(rr, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/total", strings.NewReader(body)))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "OUT_OF_RANGE")
}
