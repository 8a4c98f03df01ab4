// Package main runs the guild diplomacy daemon: the SQLite-backed services
// plus the periodic expiry sweeper.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumalyte/guilds/internal/diplomacy/history"
	"github.com/lumalyte/guilds/internal/diplomacy/peace"
	"github.com/lumalyte/guilds/internal/diplomacy/ports"
	"github.com/lumalyte/guilds/internal/diplomacy/relations"
	"github.com/lumalyte/guilds/internal/diplomacy/requests"
	"github.com/lumalyte/guilds/internal/diplomacy/storage/sqlite"
	"github.com/lumalyte/guilds/internal/diplomacy/sweep"
	"github.com/lumalyte/guilds/internal/diplomacy/wars"
	"github.com/lumalyte/guilds/internal/platform/config"
	"github.com/lumalyte/guilds/internal/platform/otel"
)

type envConfig struct {
	DBPath             string        `env:"GUILDS_DIPLOMACY_DB_PATH" envDefault:"diplomacy.db"`
	SweepInterval      time.Duration `env:"GUILDS_SWEEP_INTERVAL" envDefault:"1m"`
	RelationAfterPeace string        `env:"GUILDS_RELATION_AFTER_PEACE" envDefault:"none"`
	PostPeaceTruce     time.Duration `env:"GUILDS_POST_PEACE_TRUCE" envDefault:"24h"`
	WarFarmingCooldown time.Duration `env:"GUILDS_WAR_FARMING_COOLDOWN" envDefault:"72h"`
}

func main() {
	var cfg envConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "diplomacy")
	if err != nil {
		config.Exitf("Error: setup tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		config.Exitf("Error: open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close storage: %v", err)
		}
	}()

	var (
		notifier ports.NotificationPort = ports.NopNotifier{}
		escrow   ports.EscrowPort       = ports.NopEscrow{}
	)

	recorder := history.NewRecorder(store, nil, nil)
	relationSvc := relations.NewService(store, nil)
	requestSvc := requests.NewService(store, relationSvc, notifier, recorder, nil, nil)
	warSvc := wars.NewService(store, store, escrow, notifier, recorder, wars.Config{
		FarmingCooldown: cfg.WarFarmingCooldown,
	}, nil, nil)
	peaceCfg := peace.Config{
		RelationAfterPeace: peace.RelationAfterPeace(cfg.RelationAfterPeace),
		TruceDuration:      cfg.PostPeaceTruce,
	}
	if err := peaceCfg.Validate(); err != nil {
		config.Exitf("Error: %v", err)
	}
	peaceSvc := peace.NewService(store, store, escrow, notifier, recorder, peaceCfg, nil, nil)

	sweeper := sweep.New(requestSvc, warSvc, peaceSvc, cfg.SweepInterval)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sweeper.Run(ctx)
	})

	log.Printf("diplomacy daemon running, db=%s sweep=%s", cfg.DBPath, cfg.SweepInterval)
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		config.Exitf("Error: %v", err)
	}
}
