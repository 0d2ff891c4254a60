package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tilebank/backend/internal/clients/publisher"
	"github.com/tilebank/backend/internal/config"
	"github.com/tilebank/backend/internal/database"
	"github.com/tilebank/backend/internal/services"
)

const passTimeout = 10 * time.Minute

func main() {
	schedule := flag.String("schedule", "", `cron spec for repeated passes (e.g. "@every 10m"); empty runs one pass and exits`)
	flag.Parse()

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

	db, err := database.OpenPostgres(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ledger := services.NewLedgerService(db, logger, cfg.Wallet.InitialBalance)
	book := services.NewBookService(db, logger, cfg.Bidding.GuaranteedOccupancy)
	pub := publisher.New(publisher.Config(cfg.Publisher), logger)
	auction := services.NewAuctionService(ledger, book, pub, logger)

	if *schedule == "" {
		if err := runPass(auction, logger); err != nil {
			logger.Fatal("auction pass failed", zap.Error(err))
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := runPass(auction, logger); err != nil {
			logger.Error("auction pass failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid schedule", zap.String("schedule", *schedule), zap.Error(err))
	}

	logger.Info("auction runner scheduled", zap.String("schedule", *schedule))
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
	logger.Info("auction runner stopped")
}

func runPass(auction *services.AuctionService, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	result, err := auction.PublishAllWinningBids(ctx)
	if err != nil {
		return err
	}
	logger.Info("auction pass complete",
		zap.Int("published", len(result.Published)),
		zap.Int("failed", len(result.Failed)))
	return nil
}
