// Package quota resets free-plan daily message meters on UTC day
// rollover, the server-side half of the per-day send limit.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/store"
)

// Worker watches the clock and zeroes daily message counts when the
// UTC day changes.
type Worker struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	interval time.Duration
	lastDay  string
	now      func() time.Time
}

// NewWorker creates a quota reset worker.
func NewWorker(db *store.DB, b *bus.Bus, logger *zap.Logger) *Worker {
	return &Worker{
		db:       db,
		bus:      b,
		logger:   logger.Named("quota"),
		interval: time.Minute,
		now:      time.Now,
	}
}

// Start begins watching for day rollover.
func (w *Worker) Start(ctx context.Context) {
	w.lastDay = w.today()
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
}

// Stop stops the worker loop.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	day := w.today()
	if day == w.lastDay {
		return
	}
	n, err := w.db.ResetDailyCounts(ctx)
	if err != nil {
		// Keep lastDay unchanged so the next tick retries.
		w.logger.Error("failed to reset daily counts", zap.Error(err))
		return
	}
	w.lastDay = day
	w.logger.Info("daily message counts reset", zap.String("day", day), zap.Int64("users", n))
	if w.bus != nil {
		w.bus.Publish(bus.Emit(bus.KindQuotaReset, ResetEvent{Day: day, Users: n}))
	}
}

func (w *Worker) today() string {
	return w.now().UTC().Format("2006-01-02")
}

// ResetEvent is the bus payload for quota.reset events.
type ResetEvent struct {
	Day   string
	Users int64
}
