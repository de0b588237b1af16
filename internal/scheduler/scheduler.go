// Package scheduler runs the periodic settlement sweep that promotes
// matured pending credits to withdrawable balance.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marketlane/settlement/internal/logging"
)

type sweeper interface {
	RunSettlementSweep(ctx context.Context, now time.Time, batch int) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	ledger  sweeper
	spec    string
	batch   int
	timeout time.Duration
	logger  *slog.Logger
}

func New(ledger sweeper, spec string, batch int, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	return &Scheduler{
		cron:    c,
		ledger:  ledger,
		spec:    spec,
		batch:   batch,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runSweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("settlement sweep scheduled", "spec", s.spec, "batch", s.batch)
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, s.logger)

	start := time.Now()
	promoted, err := s.ledger.RunSettlementSweep(ctx, start.UTC(), s.batch)
	if err != nil {
		s.logger.Error("settlement sweep failed", "error", err)
		return
	}
	s.logger.Info("settlement sweep finished",
		"promoted", promoted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
