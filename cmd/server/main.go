package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"conveniencia/internal/cache"
	"conveniencia/internal/catalog"
	"conveniencia/internal/config"
	"conveniencia/internal/database"
	"conveniencia/internal/handlers"
	"conveniencia/internal/migrations"
	"conveniencia/internal/redis"
	"conveniencia/internal/relay"
	"conveniencia/internal/repository"
	"conveniencia/internal/services"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/crypto/bcrypt"
)

const (
	relayChannel   = "conveniencia:pedidos"
	relayStream    = "conveniencia:pedidos:stream"
	relayStreamLen = 200
	relayWait      = 2 * time.Second
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := migrations.Seed(context.Background(), db); err != nil {
		log.Printf("Warning: Failed to create default data: %v", err)
	}

	// Initialize Redis
	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	// Initialize repositories
	tabRepo := repository.NewTabRepository(db)
	lineRepo := repository.NewOrderLineRepository(db)
	productRepo := repository.NewProductRepository(db)

	store := cache.NewStore()
	classifier := catalog.NewClassifier(cfg.CategoryKinds, cfg.BeverageKeywords, cfg.PortionKeywords)
	bus := relay.NewLocalBus()
	notifier := relay.New(cfg.RelayDebounce,
		relay.NewPubSubBackend(redisClient, relayChannel),
		relay.NewStreamBackend(redisClient, relayStream, relayStreamLen, relayWait),
		bus,
	)

	// Initialize services
	productService := services.NewProductService(productRepo, notifier)
	tabService := services.NewTabService(tabRepo, lineRepo, productRepo, store, classifier, notifier, redisClient, cfg.WriteTimeout)
	paymentService := services.NewPaymentService(tabService, tabRepo, lineRepo, productService, redisClient, store, notifier, cfg.ServiceChargeRate, cfg.WriteTimeout)
	reportService := services.NewReportService(redisClient, tabRepo, lineRepo)
	printService := services.NewPrintService(redisClient, store)

	poller := cache.NewPoller(store, cache.NewRepositorySource(tabRepo, lineRepo, productRepo), cache.PollerConfig{
		Interval:         cfg.PollInterval,
		LoadTimeout:      cfg.LoadTimeout,
		RefreshTimeout:   cfg.RefreshTimeout,
		FailureThreshold: cfg.PollFailureThreshold,
		MaxSkipCycles:    cfg.PollMaxSkipCycles,
	})

	ctx, stop := context.WithCancel(context.Background())
	if err := poller.Load(ctx); err != nil {
		log.Printf("Warning: Initial load failed, serving an empty cache: %v", err)
	}
	go poller.Run(ctx)

	err = notifier.Listen(ctx, func(ev relay.Event) {
		if ev.Action == relay.CatalogChanged {
			if err := poller.RefreshProducts(ctx); err != nil {
				log.Printf("Failed to refresh products: %v", err)
			}
		}
		poller.Trigger()
	})
	if err != nil {
		log.Printf("Warning: Cross-client relay unavailable: %v", err)
	}

	// Catalog edits made through this process reach the cache here; Listen
	// only sees other clients.
	err = bus.Handle(ctx, func(ev relay.Event) {
		if ev.Action != relay.CatalogChanged {
			return
		}
		if err := poller.RefreshProducts(ctx); err != nil {
			log.Printf("Failed to refresh products: %v", err)
		}
	})
	if err != nil {
		log.Printf("Warning: Local catalog listener unavailable: %v", err)
	}

	// Initialize handlers
	gate, err := handlers.NewPasswordGate(cfg.AdminPassword, bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to set up admin password:", err)
	}
	apiHandler := handlers.NewAPIHandler(tabService, paymentService, productService, reportService, printService,
		store, poller, redisClient, cfg.ConfirmTTL)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handlers.SetupRouter(apiHandler, gate),
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
		"workers": func(context.Context) error {
			stop()
			return notifier.Close()
		},
		"redis": func(context.Context) error {
			return redisClient.Close()
		},
		"database": func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
