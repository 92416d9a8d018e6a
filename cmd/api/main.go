package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-invoice/internal/app"
	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/ratelimit"
	"github.com/noah-isme/backend-invoice/internal/security"
	"github.com/noah-isme/backend-invoice/internal/upi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, "invoice-api")
	if err != nil {
		panic(err)
	}
	defer deps.Close(context.Background())
	logger := deps.Logger

	if err := deps.OpenDatabase(ctx, "invoice-api"); err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}

	invoiceHandler := invoice.Handler{}
	upiHandler := &upi.Handler{
		Gen:       upi.NewGenerator(cfg.UPI.QRSize, logger),
		Validate:  deps.Validator,
		PayeeVPA:  cfg.UPI.PayeeVPA,
		PayeeName: cfg.UPI.PayeeName,
		Logger:    logger,
	}
	if deps.DB != nil {
		upiHandler.Store = upi.PGStore{DB: deps.DB}
	}

	qrLimit := ratelimit.Handler{
		Limiter: deps.NewLimiter("ratelimit:"),
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("upi-qr"),
			Window: time.Minute,
			Max:    cfg.RateLimitQRPerMinute,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	r := deps.Router(nil)
	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{
			Enable:                cfg.Sec.EnableHeaders,
			EnableHSTS:            cfg.Sec.EnableHSTS,
			HSTSMaxAge:            cfg.Sec.HSTSMaxAge,
			HSTSIncludeSubdomains: cfg.Sec.HSTSIncludeSubdomains,
		}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.Sec.MaxBodyBytes}.Middleware)

		v.Post("/invoices/total", invoiceHandler.Totals)

		v.Route("/payments/upi", func(p chi.Router) {
			p.Post("/", upiHandler.Generate)
			p.With(qrLimit.Middleware).Post("/qr.png", upiHandler.QRCode)
		})

		if upiHandler.Store != nil {
			v.Route("/payment-links", func(pl chi.Router) {
				pl.With(idem.Middleware).Post("/", upiHandler.Save)
				pl.Get("/{id}", upiHandler.Get)
			})
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := app.Serve(ctx, srv, 15*time.Second, logger); err != nil {
		logger.Error().Err(err).Msg("server exited unexpectedly")
	}
}
