package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/cache"
	"github.com/tilebank/backend/internal/clients/publisher"
	"github.com/tilebank/backend/internal/clients/uploads"
	"github.com/tilebank/backend/internal/config"
	"github.com/tilebank/backend/internal/database"
	"github.com/tilebank/backend/internal/handlers"
	mW "github.com/tilebank/backend/internal/middleware"
	"github.com/tilebank/backend/internal/services"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	blockedCoords, err := cfg.Bidding.ParsedBlockedCoords()
	if err != nil {
		logger.Fatal("invalid blocked coords", zap.Error(err))
	}
	rules := services.BidRules{
		MinimumBid:    cfg.Bidding.MinimumBid,
		BlockedCoords: blockedCoords,
	}

	db, err := database.OpenPostgres(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient := database.OpenRedis(cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	tiles := cache.NewTileCache(redisClient, logger)

	ledger := services.NewLedgerService(db, logger, cfg.Wallet.InitialBalance)
	book := services.NewBookService(db, logger, cfg.Bidding.GuaranteedOccupancy)
	pub := publisher.New(publisher.Config(cfg.Publisher), logger)
	reserver := uploads.New(uploads.Config(cfg.Uploads), logger)
	auction := services.NewAuctionService(ledger, book, pub, logger)

	wallet := handlers.NewWalletHandler(ledger, logger)
	bidding := handlers.NewBiddingHandler(ledger, book, auction, pub, reserver, tiles, rules, logger)
	admin := handlers.NewAdminHandler(ledger, book, pub, tiles, logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(cfg.JWT.SecretKey))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", wallet.GetBalance)
				r.Get("/offers", wallet.GetOffers)
				r.Get("/history", wallet.GetHistory)
				r.Post("/offer", wallet.CreateOffer)
				r.Post("/accept", wallet.Accept)
				r.Post("/reject", wallet.Reject)
				r.Post("/rescind", wallet.Rescind)
			})

			r.Route("/bids", func(r chi.Router) {
				r.Get("/", bidding.GetBids)
				r.Get("/live", bidding.GetLiveBids)
				r.Get("/pending", bidding.GetPendingBids)
				r.Delete("/live/{coords}", bidding.UnpublishLiveBid)
				r.Get("/{coords}", bidding.GetTileInfo)
				r.Post("/{coords}/init", bidding.InitBid)
				r.Post("/{coords}", bidding.FinalizeBid)
				r.Delete("/{coords}", bidding.RescindBid)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.AdminKey(cfg.Admin.KeyHash))

				r.Post("/wallet/inject", admin.Inject)
				r.Post("/wallet/partially-accept", admin.PartiallyAccept)
				r.Get("/wallet/balance/{userID}", admin.GetUserBalance)

				r.Get("/bids/live", admin.GetAllLiveBids)
				r.Get("/bids/{coords}", admin.GetOccupant)
				r.Post("/bids/{coords}/reject", admin.RejectBid)
			})
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
