package upi

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/noah-isme/backend-invoice/internal/obs"
)

// DefaultQRSize is the pixel width of generated QR images.
const DefaultQRSize = 256

// RenderPNG encodes content as a QR code PNG with medium error correction.
func RenderPNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}

// DataURI wraps PNG bytes as an embeddable image data URI.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// Generator builds UPI links together with their QR images. It holds no mutable
// state and is safe for concurrent use.
type Generator struct {
	Size   int
	Logger zerolog.Logger
}

// NewGenerator constructs a generator rendering QR images of the given width.
func NewGenerator(size int, logger zerolog.Logger) *Generator {
	if size <= 0 {
		size = DefaultQRSize
	}
	return &Generator{Size: size, Logger: logger}
}

// Generate returns the deep link and QR image for req. It reports false when
// the request is not payable. A QR rendering failure is logged and leaves
// QRDataURI empty; the link is still returned.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, bool) {
	link, ok := BuildLink(req)
	if !ok {
		obs.RecordUPIGenerate("rejected")
		return Result{}, false
	}
	res := Result{Link: link}
	png, err := RenderPNG(link, g.Size)
	if err != nil {
		logger := g.Logger
		if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
			logger = *ctxLogger
		}
		logger.Error().Err(err).Str("invoice_id", req.InvoiceID).Msg("upi_qr_render")
		obs.RecordUPIGenerate("link_only")
		return res, true
	}
	res.QRDataURI = DataURI(png)
	obs.RecordUPIGenerate("ok")
	return res, true
}
