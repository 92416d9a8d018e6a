package upi_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/upi"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	sql  string
	args []any
	row  fakeRow
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return f.row
}

func TestPGStoreCreateAssignsID(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*time.Time)) = created
		return nil
	}}}
	store := upi.PGStore{DB: db}

	link, err := store.Create(context.Background(), upi.PaymentLink{InvoiceID: "INV-1", Amount: "10.00", Currency: "INR"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, link.ID)
	require.Equal(t, created, link.CreatedAt)
	require.Contains(t, db.sql, "INSERT INTO payment_links")
	require.Len(t, db.args, 9)
	require.Equal(t, link.ID, db.args[0])
	require.Equal(t, "10.00", db.args[4])
}

func TestPGStoreCreateDuplicate(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(...any) error {
		return &pgconn.PgError{Code: "23505"}
	}}}
	_, err := upi.PGStore{DB: db}.Create(context.Background(), upi.PaymentLink{InvoiceID: "INV-1"})
	require.ErrorIs(t, err, upi.ErrDuplicate)
}

func TestPGStoreGetNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}
	_, err := upi.PGStore{DB: db}.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, upi.ErrNotFound)
}

func TestPGStoreGetWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return boom }}}
	_, err := upi.PGStore{DB: db}.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, upi.ErrNotFound)
}
