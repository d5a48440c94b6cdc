package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/database"
	"marketplace/handler"
	"marketplace/helper"
	"marketplace/ledger"
	"marketplace/middleware"
	"marketplace/paymob"
	"marketplace/router"
	"marketplace/service"
	"marketplace/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := utils.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	appCfg := config.LoadApp()
	paymobCfg := config.LoadPaymob()
	logger.Info("config loaded", "paymob", paymobCfg.String(), "port", appCfg.Port)

	scheme, ok := paymob.LookupScheme(paymobCfg.HMACScheme)
	if !ok {
		logger.Error("unknown PAYMOB_HMAC_SCHEME", "scheme", paymobCfg.HMACScheme)
		os.Exit(1)
	}
	if paymobCfg.HMACKey == "" || paymobCfg.APIKey == "" {
		logger.Error("PAYMOB_API_KEY and PAYMOB_HMAC_KEY must be set")
		os.Exit(1)
	}

	db := database.ConnectDB()
	rdb := redis.NewClient(&redis.Options{Addr: appCfg.RedisAddr})
	defer rdb.Close()

	client := paymob.NewClient(paymobCfg, logger)
	verifier := paymob.NewVerifier(scheme, paymobCfg.HMACKey)
	retry := service.RetryPolicy{Attempts: paymobCfg.MaxAttempts, Backoff: paymobCfg.RetryBackoff}

	payments := ledger.New(db, logger,
		service.NewStatusPublisher(rdb, logger),
		service.NewReceiptNotifier(db, utils.NewMailer(config.LoadSMTP()), appCfg.FrontendURL, logger),
	)

	h := &handler.PaymentHandler{
		Sessions:      service.NewSessions(db, client, payments, paymobCfg.IframeID, retry, logger),
		Reconciler:    service.NewReconciler(db, verifier, payments, logger),
		Confirmations: service.NewConfirmations(db, client, payments, retry, logger),
		Ledger:        payments,
		IframeURL: func(key string) string {
			return client.IframeURL(paymobCfg.IframeID, key)
		},
		Redis:       rdb,
		FrontendURL: appCfg.FrontendURL,
		Logger:      logger,
	}

	scheduler, err := helper.StartStaleSessionScheduler(payments, appCfg.StaleSessionAfter, appCfg.StaleScanEvery, logger)
	if err != nil {
		logger.Error("start stale session scheduler", "err", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestContext())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     appCfg.FrontendURL,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept",
		AllowCredentials: true,
		MaxAge:           600,
	}))
	router.SetupRoutes(app, h)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	if err := app.Listen(":" + appCfg.Port); err != nil {
		logger.Error("listen", "err", err)
	}
}
