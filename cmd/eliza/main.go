// Copyright 2026 © The Eliza Authors
// SPDX-License-Identifier: Apache-2.0

// Package main runs the autonomous agent loop: the trigger cadence watches
// the current plan for drift, the planning cadence drives the plan engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OkGoDoIt/eliza/pkg/config"
	"github.com/OkGoDoIt/eliza/pkg/loop"
	"github.com/OkGoDoIt/eliza/pkg/memory"
	"github.com/OkGoDoIt/eliza/pkg/plan"
	"github.com/OkGoDoIt/eliza/pkg/planner"
	"github.com/OkGoDoIt/eliza/pkg/telemetry"
)

const version = "0.3.0"

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	goal := flag.String("goal", "", "override the agent goal")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *goal); err != nil {
		log.Fatalf("eliza: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, goal string) error {
	telemetry.ConfigureSlog(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.InitWithConfig("eliza", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	log := slog.Default()

	conversations, err := buildConversations(cfg)
	if err != nil {
		return err
	}

	provider := &planner.MemoryStateProvider{
		AgentID:       cfg.Planner.AgentID,
		Goal:          goal,
		SessionID:     cfg.Planner.AgentID,
		Window:        cfg.Memory.Window,
		Conversations: conversations,
	}

	opts := []planner.Option{
		planner.WithStalenessThreshold(cfg.Planner.StalenessThreshold),
	}
	store, closeStore, err := buildPlanStore(cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	if store != nil {
		opts = append(opts, planner.WithStore(store))
	}

	engine := planner.NewEngine(cfg.Planner.AgentID, provider, opts...)
	if err := engine.Restore(ctx); err != nil {
		log.Warn("eliza.restore.error", slog.String("error", err.Error()))
	}

	if !cfg.Loop.Enabled {
		log.Info("eliza.loop.disabled")
		<-ctx.Done()
		return nil
	}

	l := loop.New(cfg.Planner.AgentID, loop.Options{
		TriggerInterval:  cfg.Loop.TriggerInterval,
		PlanningInterval: cfg.Loop.PlanningInterval,
	})
	l.RegisterTrigger(driftWatch(engine, provider))
	l.SetPlanningUnit(engine.Run)

	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("start loop: %w", err)
	}

	<-ctx.Done()
	l.Stop()
	return nil
}

// driftWatch asks the engine to monitor the active plan on the fast cadence
// and replace it when drift warrants. With no plan it is a cheap no-op; the
// planning cadence handles generation.
func driftWatch(engine *planner.Engine, provider planner.StateProvider) loop.TriggerFunc {
	return func(ctx context.Context) error {
		current := engine.CurrentPlan()
		if current == nil {
			return nil
		}
		if _, err := engine.MonitorPlan(ctx, current); err != nil {
			return err
		}
		if discrepancies := engine.CheckForDrift(current); len(discrepancies) > 0 {
			snap, err := provider.Snapshot(ctx)
			if err != nil {
				return err
			}
			if _, err := engine.ReplanIfNeeded(ctx, snap, current); err != nil {
				return err
			}
		}
		return nil
	}
}

func buildConversations(cfg *config.Config) (memory.ConversationMemory, error) {
	switch cfg.Memory.Backend {
	case "", "memory":
		return memory.NewInMemoryConversation(), nil
	case "file":
		return memory.NewFileConversation(cfg.Memory.Dir)
	default:
		return nil, fmt.Errorf("unknown memory backend: %s", cfg.Memory.Backend)
	}
}

func buildPlanStore(cfg *config.Config) (plan.Store, func() error, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return plan.NewMemoryStore(), nil, nil
	case "sqlite":
		store, db, err := plan.OpenSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open plan store: %w", err)
		}
		return store, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
