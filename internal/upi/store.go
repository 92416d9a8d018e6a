package upi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-invoice/internal/common"
)

var (
	// ErrNotFound is returned when a saved payment link does not exist.
	ErrNotFound = common.NewAppError("NOT_FOUND", "payment link not found", http.StatusNotFound, nil)
	// ErrDuplicate is returned when a payment link with the same id already exists.
	ErrDuplicate = common.NewAppError("CONFLICT", "payment link already exists", http.StatusConflict, nil)
)

// PaymentLink is a generated UPI descriptor the caller chose to keep.
type PaymentLink struct {
	ID        uuid.UUID `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	PayeeVPA  string    `json:"payeeVpa"`
	PayeeName string    `json:"payeeName"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Note      string    `json:"note"`
	Link      string    `json:"link"`
	QRDataURI string    `json:"qr"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists saved payment links.
type Store interface {
	Create(ctx context.Context, link PaymentLink) (PaymentLink, error)
	Get(ctx context.Context, id uuid.UUID) (PaymentLink, error)
}

// DBTX is the subset of pgx used by PGStore; *pgxpool.Pool satisfies it.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore stores payment links in PostgreSQL.
type PGStore struct {
	DB DBTX
}

const insertPaymentLink = `INSERT INTO payment_links (id, invoice_id, payee_vpa, payee_name, amount, currency, note, link, qr_data_uri)
VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9)
RETURNING created_at`

const selectPaymentLink = `SELECT id, invoice_id, payee_vpa, payee_name, amount::text, currency, note, link, qr_data_uri, created_at
FROM payment_links WHERE id = $1`

// Create inserts link, assigning an id when it has none.
func (s PGStore) Create(ctx context.Context, link PaymentLink) (PaymentLink, error) {
	if s.DB == nil {
		return PaymentLink{}, errors.New("upi: database not configured")
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	err := s.DB.QueryRow(ctx, insertPaymentLink,
		link.ID, link.InvoiceID, link.PayeeVPA, link.PayeeName, link.Amount,
		link.Currency, link.Note, link.Link, link.QRDataURI,
	).Scan(&link.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PaymentLink{}, ErrDuplicate.Wrap(err)
		}
		return PaymentLink{}, fmt.Errorf("insert payment link: %w", err)
	}
	return link, nil
}

// Get loads a saved payment link by id.
func (s PGStore) Get(ctx context.Context, id uuid.UUID) (PaymentLink, error) {
	if s.DB == nil {
		return PaymentLink{}, errors.New("upi: database not configured")
	}
	var link PaymentLink
	err := s.DB.QueryRow(ctx, selectPaymentLink, id).Scan(
		&link.ID, &link.InvoiceID, &link.PayeeVPA, &link.PayeeName, &link.Amount,
		&link.Currency, &link.Note, &link.Link, &link.QRDataURI, &link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentLink{}, ErrNotFound.Wrap(err)
		}
		return PaymentLink{}, fmt.Errorf("get payment link: %w", err)
	}
	return link, nil
}
