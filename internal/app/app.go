// Package app adapts Orchestrator's lifecycle to the gateway.Controller
// interface: one App can start, stop, and restart simulation runs
// across multiple POSTed configs, owning at most one live Orchestrator
// at a time.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/internal/config"
	"github.com/meridianhealth/claimsim/internal/orchestrator"
	"github.com/meridianhealth/claimsim/internal/parser"
)

const defaultDrain = 2 * time.Second

// App owns the currently running (if any) Orchestrator.
type App struct {
	log *zap.Logger

	mu     sync.Mutex
	orch   *orchestrator.Orchestrator
	source *os.File
}

// New builds an empty App with no simulation running.
func New(log *zap.Logger) *App {
	return &App{log: log}
}

// Start loads the configured claim source and starts a fresh
// Orchestrator. It is an error to Start while one is already running.
func (a *App) Start(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch != nil {
		return fmt.Errorf("app: a simulation is already running")
	}

	f, err := os.Open(cfg.Ingestion.SourcePath)
	if err != nil {
		return fmt.Errorf("app: open claim source: %w", err)
	}

	source := parser.New(f, a.log.Named("parser"))
	orch, err := orchestrator.New(cfg, source, cfg.Ingestion.TotalHint, a.log.Named("orchestrator"))
	if err != nil {
		f.Close()
		return err
	}

	if err := orch.Start(context.Background()); err != nil {
		f.Close()
		return err
	}

	a.orch = orch
	a.source = f
	return nil
}

// Stop drains and stops the running Orchestrator, if any, and closes
// the claim source it was reading from.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch == nil {
		return fmt.Errorf("app: no simulation running")
	}

	err := a.orch.Stop(defaultDrain)
	a.orch = nil

	if a.source != nil {
		a.source.Close()
		a.source = nil
	}

	return err
}

// Status reports the running Orchestrator's status, if any.
func (a *App) Status() (orchestrator.Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch == nil {
		return orchestrator.Status{}, false
	}
	return a.orch.Status(), true
}

// Stats reports the running Orchestrator's stats, if any.
func (a *App) Stats() (orchestrator.Stats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch == nil {
		return orchestrator.Stats{}, false
	}
	return a.orch.Stats(), true
}

// SystemInfo reports the running Orchestrator's host/runtime info, if
// any.
func (a *App) SystemInfo() (orchestrator.SystemInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch == nil {
		return orchestrator.SystemInfo{}, false
	}
	return a.orch.SystemInfo(), true
}
