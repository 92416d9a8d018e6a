package upi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
)

const maxPayloadBytes = 64 << 10

// Handler exposes UPI link generation and saved payment links over HTTP.
type Handler struct {
	Gen       *Generator
	Store     Store
	Validate  *validator.Validate
	PayeeVPA  string
	PayeeName string
	Logger    zerolog.Logger
}

type linkPayload struct {
	PayeeVPA  string  `json:"payeeVpa" validate:"required,max=255"`
	PayeeName string  `json:"payeeName" validate:"max=255"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	InvoiceID string  `json:"invoiceId" validate:"required,max=64"`
	Note      string  `json:"note" validate:"max=255"`
	// Currency is accepted for display only; links are always denominated in INR.
	Currency string `json:"currency"`
}

type linkResponse struct {
	Link     string `json:"link"`
	QR       string `json:"qr"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (linkPayload, bool) {
	var payload linkPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return payload, false
	}
	if strings.TrimSpace(payload.PayeeVPA) == "" {
		payload.PayeeVPA = h.PayeeVPA
	}
	if strings.TrimSpace(payload.PayeeName) == "" {
		payload.PayeeName = h.PayeeName
	}
	return payload, true
}

func (p linkPayload) request() Request {
	return Request{
		PayeeVPA:  p.PayeeVPA,
		PayeeName: p.PayeeName,
		Amount:    p.Amount,
		InvoiceID: p.InvoiceID,
		Note:      p.Note,
	}
}

// Generate builds a UPI deep link and QR image without persisting anything.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, ok := h.Gen.Generate(r.Context(), payload.request())
	if !ok {
		common.JSONError(w, http.StatusUnprocessableEntity, "UPI_UNAVAILABLE", "payee address and a positive amount are required", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": linkResponse{
			Link:     res.Link,
			QR:       res.QRDataURI,
			Amount:   FormatAmount(payload.Amount),
			Currency: Currency,
		},
	})
}

// QRCode renders the QR image for a payment as a PNG download.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	link, ok := BuildLink(payload.request())
	if !ok {
		common.JSONError(w, http.StatusUnprocessableEntity, "UPI_UNAVAILABLE", "payee address and a positive amount are required", nil)
		return
	}
	png, err := RenderPNG(link, h.Gen.Size)
	if err != nil {
		h.Logger.Error().Err(err).Str("invoice_id", payload.InvoiceID).Msg("upi_qr_download")
		common.JSONError(w, http.StatusUnprocessableEntity, "QR_UNAVAILABLE", "unable to render qr code", nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName(payload.InvoiceID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Save generates a payment link and stores it.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "payment link storage not configured", nil)
		return
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payment link", validationDetails(err))
			return
		}
	}
	res, ok := h.Gen.Generate(r.Context(), payload.request())
	if !ok {
		common.JSONError(w, http.StatusUnprocessableEntity, "UPI_UNAVAILABLE", "payee address and a positive amount are required", nil)
		return
	}
	note := payload.Note
	if strings.TrimSpace(note) == "" {
		note = DefaultNote(payload.InvoiceID)
	}
	saved, err := h.Store.Create(r.Context(), PaymentLink{
		InvoiceID: payload.InvoiceID,
		PayeeVPA:  strings.TrimSpace(payload.PayeeVPA),
		PayeeName: payload.PayeeName,
		Amount:    FormatAmount(payload.Amount),
		Currency:  Currency,
		Note:      note,
		Link:      res.Link,
		QRDataURI: res.QRDataURI,
	})
	if err != nil {
		if !common.IsAppError(err) {
			h.Logger.Error().Err(err).Str("invoice_id", payload.InvoiceID).Msg("save payment link")
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": saved})
}

// Get returns a saved payment link.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "payment link storage not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payment link id", nil)
		return
	}
	link, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if !common.IsAppError(err) {
			h.Logger.Error().Err(err).Str("payment_link_id", id.String()).Msg("get payment link")
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": link})
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func downloadName(invoiceID string) string {
	var b strings.Builder
	for _, r := range invoiceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "upi-qr.png"
	}
	return "upi-" + b.String() + ".png"
}
