package upi_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/upi"
)

func TestGenerateReturnsLinkAndPNG(t *testing.T) {
	gen := upi.NewGenerator(256, zerolog.Nop())
	res, ok := gen.Generate(context.Background(), upi.Request{
		PayeeVPA:  "alice@bank",
		PayeeName: "Alice",
		Amount:    250,
		InvoiceID: "INV-2024-0007",
	})
	require.True(t, ok)
	require.Contains(t, res.Link, "am=250.00")

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(res.QRDataURI, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(res.QRDataURI, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 256, img.Bounds().Dx())
}

func TestGenerateRejectsUnpayable(t *testing.T) {
	gen := upi.NewGenerator(0, zerolog.Nop())
	res, ok := gen.Generate(context.Background(), upi.Request{PayeeVPA: "", Amount: 10, InvoiceID: "1"})
	require.False(t, ok)
	require.Equal(t, upi.Result{}, res)

	_, ok = gen.Generate(context.Background(), upi.Request{PayeeVPA: "a@b", Amount: 0, InvoiceID: "1"})
	require.False(t, ok)
}

func TestGenerateKeepsLinkWhenQRFails(t *testing.T) {
	var buf bytes.Buffer
	gen := upi.NewGenerator(128, zerolog.New(&buf))
	res, ok := gen.Generate(context.Background(), upi.Request{
		PayeeVPA:  "alice@bank",
		Amount:    1,
		InvoiceID: "INV-1",
		Note:      strings.Repeat("n", 4000),
	})
	require.True(t, ok)
	require.NotEmpty(t, res.Link)
	require.Empty(t, res.QRDataURI)
	require.Contains(t, buf.String(), "upi_qr_render")
}

func TestGenerateConcurrent(t *testing.T) {
	gen := upi.NewGenerator(128, zerolog.Nop())
	var wg sync.WaitGroup
	links := make([]string, 8)
	for i := range links {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, ok := gen.Generate(context.Background(), upi.Request{PayeeVPA: "shop@upi", Amount: float64(i + 1), InvoiceID: "C"})
			if ok {
				links[i] = res.Link
			}
		}(i)
	}
	wg.Wait()
	for i, link := range links {
		require.Contains(t, link, "am="+upi.FormatAmount(float64(i+1)))
	}
}
