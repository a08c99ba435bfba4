package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/config"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
	"github.com/receiptdrop/accounts/pkg/storage"
	"github.com/receiptdrop/accounts/pkg/sync"
)

var runOnce = flag.Bool("run-once", false, "Run one sync sweep and exit")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "accounts-syncer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := storage.OpenPostgres(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer db.Close()

	codec, err := pii.NewAESCodec(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}
	hasher := pii.NewHasher(cfg.Security.EmailHashSalt)

	store := account.NewPostgresStore(db, codec, cfg.Storage.PostgresTimeout)
	source := sync.NewSQLSource(db, cfg.Storage.PostgresTimeout)
	syncer := sync.NewSyncer(source, store, hasher, cfg.Sync.InboxDomain, cfg.Sync.BatchSize, logger, nil)

	sweep := func() {
		created, err := syncer.Run(context.Background())
		if err != nil {
			logger.WithError(err).Error("sync sweep failed")
			return
		}
		if created > 0 {
			logger.WithField("created", created).Info("sync sweep completed")
		}
	}

	if *runOnce {
		sweep()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Sync.Schedule, sweep); err != nil {
		return fmt.Errorf("failed to schedule sync sweep: %w", err)
	}
	c.Start()
	logger.WithField("schedule", cfg.Sync.Schedule).Info("accounts syncer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("syncer stopped")
	return nil
}
