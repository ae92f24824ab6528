// Package main provides the Billhawk automation worker: reminder timers,
// periodic sweeps, and the workflow rule engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/billhawk/billhawk/pkg/cmd"
	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/reminder"
	"github.com/billhawk/billhawk/pkg/sweeper"
	"github.com/billhawk/billhawk/pkg/workflow"
)

type Worker struct {
	id        string
	store     persistence.Persistence
	bus       eventbus.EventBus
	scheduler *reminder.Scheduler
	sweep     *sweeper.Sweeper
	engine    *workflow.Engine
	logger    *slog.Logger
}

func NewWorker(
	id string,
	store persistence.Persistence,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Worker {
	dispatcher := cmd.NewDispatcher(store, logger)
	scheduler := reminder.NewScheduler(store, dispatcher, bus, nil, logger)
	sweep := sweeper.NewSweeper(store, scheduler, bus, nil, logger)

	registry := cmd.NewRegistry(store, dispatcher, logger)
	engine := workflow.NewEngine(store.AutomationRules(), store.WorkflowExecutions(),
		store.AutomationLogs(), registry, logger)

	return &Worker{
		id:        id,
		store:     store,
		bus:       bus,
		scheduler: scheduler,
		sweep:     sweep,
		engine:    engine,
		logger:    logger,
	}
}

// Start rehydrates reminder timers, launches the sweeps, binds the rule
// engine to the event stream, and blocks until the process is signalled.
func (w *Worker) Start(ctx context.Context) error {
	armed, err := w.scheduler.Rehydrate(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Reminder timers armed", "count", armed)

	if err := w.sweep.Start(ctx); err != nil {
		return err
	}

	if err := w.engine.BindEventBus(w.bus); err != nil {
		return err
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Automation worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down automation worker")
	w.sweep.Stop()
	w.scheduler.Stop()

	return nil
}
