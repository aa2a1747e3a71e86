package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charitylink/backend/docs"
	"github.com/charitylink/backend/internal/audit"
	"github.com/charitylink/backend/internal/config"
	"github.com/charitylink/backend/internal/database"
	"github.com/charitylink/backend/internal/gateway"
	"github.com/charitylink/backend/internal/handlers"
	"github.com/charitylink/backend/internal/lock"
	"github.com/charitylink/backend/internal/metrics"
	mW "github.com/charitylink/backend/internal/middleware"
	"github.com/charitylink/backend/internal/repository"
	"github.com/charitylink/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title CharityLink Payments API
// @version 1.0
// @description Payment confirmation and ledger reconciliation for the donation platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Init(".env")

	cfg, err := config.LoadPaymentConfig()
	if err != nil {
		log.Fatalf("Invalid payment configuration: %v", err)
	}

	viper.SetDefault("server.port", "8080")
	port := viper.GetString("server.port")
	docs.SwaggerInfo.Host = "localhost:" + port

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx)
	defer closeStore()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	auditLogger := audit.NewAuditLogger()

	// In-process exclusion always applies; Redis extends it across instances.
	locker := lock.Chain{lock.NewKeyedMutex()}
	if redisClient != nil && cfg.RedisLock {
		locker = append(locker, lock.NewRedisLocker(redisClient, cfg.LockTTL))
	}

	gateways := gateway.NewRegistry(
		gateway.NewVNPay(cfg.VNPayHashSecret, gateway.HashAlgorithm(cfg.VNPayHashAlgorithm)).WithTmnCode(cfg.VNPayTmnCode),
		gateway.NewMoMo(cfg.MoMoAccessKey, cfg.MoMoSecretKey).WithPartnerCode(cfg.MoMoPartnerCode),
	).WithInsecureSkipVerify(cfg.InsecureSkipSignature)

	senders := services.MultiSender{services.NewDBNotificationSender(store)}
	if redisClient != nil {
		senders = append(senders, services.NewRedisNotificationSender(redisClient))
	}
	dispatcher := services.NewAsyncDispatcher(senders, m, cfg.NotificationQueueSize, cfg.NotificationWorkers)
	defer dispatcher.Stop()

	confirmationService := services.NewConfirmationService(store, locker, services.NewReallocationService(auditLogger, m), dispatcher, auditLogger, m)
	confirmationService.SetTimeout(cfg.ConfirmTimeout)
	ledgerService := services.NewLedgerService(store, auditLogger, m)
	reconcilerDone := ledgerService.StartReconciler(ctx, cfg.ReconcileInterval)

	paymentHandler := handlers.NewPaymentHandler(confirmationService, gateways, m)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks are authenticated by their signature
		r.Get("/payments/vnpay/return", paymentHandler.VNPayReturn)
		r.Get("/payments/vnpay/ipn", paymentHandler.VNPayIPN)
		r.Get("/payments/momo/return", paymentHandler.MoMoReturn)
		r.Post("/payments/momo/ipn", paymentHandler.MoMoIPN)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(mW.RequireRole(mW.RoleAdmin))

			r.Post("/payments/confirm", paymentHandler.ManualConfirm)
			r.Get("/campaigns/{id}/ledger", ledgerHandler.GetCampaignLedger)
			r.Get("/campaigns/{id}/reconcile", ledgerHandler.ReconcileCampaign)
			r.Get("/ledger/pools/{pool}", ledgerHandler.GetPoolBalance)
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (environment=%s)", port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	<-reconcilerDone

	log.Println("Server stopped")
}

// openStore selects PostgreSQL or the embedded SQLite store from
// database.driver.
func openStore(ctx context.Context) (repository.Store, func()) {
	viper.SetDefault("database.driver", "postgres")

	switch driver := viper.GetString("database.driver"); driver {
	case "postgres":
		db, err := database.InitDB(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		return repository.NewPostgresStore(db), func() { db.Close() }
	case "sqlite":
		gdb, err := database.InitSQLite()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		return repository.NewGormStore(gdb), func() {
			if sqlDB, err := gdb.DB(); err == nil {
				sqlDB.Close()
			}
		}
	default:
		log.Fatalf("Unsupported database.driver %q (want postgres or sqlite)", driver)
		return nil, nil
	}
}
