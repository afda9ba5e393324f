package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/api"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/notify"
	"github.com/safar/storefront/internal/payment"
	"github.com/safar/storefront/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Load config: %v", err)
	}

	log := newLogger(cfg.Log)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if !verifier.Enabled() {
		log.Warn("AUTH_JWT_SECRET not set, every caller is treated as a guest")
	}

	var gateway payment.Gateway = payment.Disabled{}
	if cfg.Payment.Enabled() {
		gateway = payment.NewRazorpay(cfg.Payment.RazorpayKeyID, cfg.Payment.RazorpayKeySecret, cfg.Payment.Timeout)
	} else {
		log.Warn("Razorpay keys not set, online payments are disabled")
	}

	var mailer notify.Mailer
	if cfg.Mail.SendGridAPIKey != "" {
		mailer = notify.NewSendGridMailer(cfg.Mail.SendGridAPIKey)
	} else {
		log.Warn("SENDGRID_API_KEY not set, notifications are logged instead of sent")
		mailer = notify.NewLogMailer(log)
	}

	limiter := notify.NewSlidingWindowLimiter(cfg.Notify.RateWindow, cfg.Notify.RateMax)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(cfg.Notify.RateWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune()
			case <-ctx.Done():
				return
			}
		}
	}()

	dispatcher := notify.NewDispatcher(mailer, limiter, store.NewAttemptLog(db),
		notify.Sender{
			Address:      cfg.Mail.FromAddress,
			Name:         cfg.Mail.FromName,
			AdminAddress: cfg.Mail.AdminAddress,
		},
		notify.Options{
			MaxAttempts: cfg.Notify.MaxAttempts,
			BaseDelay:   cfg.Notify.BaseDelay,
			SendTimeout: cfg.Mail.Timeout,
		},
		log.WithField("component", "notify"))

	orchestrator := checkout.NewOrchestrator(
		store.NewLedger(db),
		store.NewCatalog(db),
		store.NewBookingLog(db),
		gateway,
		dispatcher,
		checkout.Options{
			Currency:        cfg.Payment.Currency,
			Tolerance:       cfg.Checkout.PriceTolerance,
			DispatchTimeout: cfg.Notify.DispatchTimeout,
		},
		log.WithField("component", "checkout"))

	carts := cart.NewService(cart.NewSQLRepository(db), log.WithField("component", "cart"))

	if cfg.Admin.APIKey == "" {
		log.Warn("ADMIN_API_KEY not set, admin routes are locked")
	}

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(api.NewSQLBackend(db), carts, orchestrator, verifier, cfg.Admin.APIKey, log.WithField("component", "http"))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	// Let in-flight notifications finish before the database closes.
	orchestrator.Wait()
	log.Info("Server stopped")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
