// Package orchestrator wires the daemon together: durable store, runtime
// manager, processor, ingestion, session coordination, status delivery, the
// HTTP surface, and scheduled maintenance.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/cuecard/internal/config"
	"github.com/user/cuecard/internal/ingest"
	"github.com/user/cuecard/internal/notify"
	"github.com/user/cuecard/internal/processor"
	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/session"
	"github.com/user/cuecard/internal/state"
	"github.com/user/cuecard/internal/status"
	"github.com/user/cuecard/pkg/agent"
)

// closedSessionRetention is how long closed session rows are kept before
// the maintenance job prunes them.
const closedSessionRetention = 24 * time.Hour

// Orchestrator owns the daemon's components and their lifecycle.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *state.Store
	manager     *runtime.Manager
	processor   *processor.Processor
	ingestor    *ingest.Ingestor
	coordinator *session.Coordinator
	tracker     *status.Tracker

	cron        *cron.Cron
	httpServer  *http.Server
	unsubscribe func()
}

// New builds the daemon from configuration. The provider is injected so
// tests and alternative backends can swap it.
func New(cfg *config.Config, provider agent.Provider, logger *slog.Logger) (*Orchestrator, error) {
	st, err := state.Open(filepath.Join(cfg.DataDir, "cuecard.db"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	metrics := runtime.NewMetricsCollector(cfg.Metrics.TokenizerModel, cfg.Metrics.WarnTokens, cfg.Metrics.CriticalTokens)

	sink, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	tracker := newTracker(sink, metrics)

	manager := runtime.NewManager(st, cfg, metrics, tracker, logger)
	proc := processor.New(st, manager, cfg, logger)
	ingestor := ingest.New(st, manager, proc, logger)
	coordinator := session.NewCoordinator(st, manager, proc, provider, tracker, cfg, logger)

	o := &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		manager:     manager,
		processor:   proc,
		ingestor:    ingestor,
		coordinator: coordinator,
		tracker:     tracker,
		cron:        cron.New(),
	}
	o.unsubscribe = st.SubscribeTranscripts(ingestor.HandleTranscriptInsert)

	if _, err := o.cron.AddFunc(cfg.MaintenanceSchedule, o.runMaintenance); err != nil {
		st.Close()
		return nil, fmt.Errorf("schedule maintenance job: %w", err)
	}
	return o, nil
}

// newTracker avoids handing a typed-nil sink to the tracker when Telegram
// is not configured.
func newTracker(sink *notify.TelegramSink, metrics *runtime.MetricsCollector) *status.Tracker {
	if sink == nil {
		return status.NewTracker(nil, metrics)
	}
	return status.NewTracker(sink, metrics)
}

// Start runs the resume pass for events that were live at last shutdown,
// starts scheduled maintenance, and begins serving HTTP if enabled.
func (o *Orchestrator) Start(ctx context.Context) error {
	resumed, err := o.manager.ResumeExistingEvents(ctx, o.coordinator.StartEvent)
	if err != nil {
		return fmt.Errorf("resume pass: %w", err)
	}
	if resumed > 0 {
		o.logger.Info("events resumed", "count", resumed)
	}

	o.cron.Start()

	if o.cfg.HTTP.Enabled {
		o.httpServer = &http.Server{
			Addr:    o.cfg.HTTP.Listen,
			Handler: o.routes(),
		}
		go func() {
			o.logger.Info("http listening", "addr", o.cfg.HTTP.Listen)
			if err := o.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				o.logger.Error("http server failed", "error", err)
			}
		}()
	}
	return nil
}

// Shutdown stops the daemon in dependency order: stop accepting input,
// stop maintenance, quiesce every live runtime, then close the store.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.httpServer != nil {
		if err := o.httpServer.Shutdown(ctx); err != nil {
			o.logger.Error("http shutdown failed", "error", err)
		}
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	cronCtx := o.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	for _, eventID := range o.manager.EventIDs() {
		if err := o.manager.Metrics().Flush(ctx, o.store, eventID); err != nil {
			o.logger.Error("shutdown metrics flush failed", "event_id", eventID, "error", err)
		}
		o.manager.Remove(eventID)
	}

	if err := o.store.Close(); err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	o.logger.Info("shutdown complete")
	return nil
}

// runMaintenance prunes closed session rows past their retention window.
func (o *Orchestrator) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pruned, err := o.store.PruneClosedSessions(ctx, time.Now().Add(-closedSessionRetention))
	if err != nil {
		o.logger.Error("session prune failed", "error", err)
		return
	}
	if pruned > 0 {
		o.logger.Info("closed sessions pruned", "count", pruned)
	}
}
