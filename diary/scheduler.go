/*
scheduler.go - Automated recurring materialization

PURPOSE:
  Periodically expands the active recurring rules into the current month
  and a configurable number of months ahead, so future months show the
  planned salary, rent and subscriptions before the user gets there.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Periods a rule already produced are skipped by the rule's watermark,
    so every tick is idempotent

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Lookahead: Months to materialize, current month included (default: 1)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecurringScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

  or, under an errgroup:
  g.Go(func() error { return scheduler.Run(ctx) })

SEE ALSO:
  - recurring.go: Service.MaterializeAhead
  - ../recurring/materializer.go: Rule expansion
*/
package diary

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/finance-diary/ledger"
)

// RecurringScheduler materializes recurring rules on a timer.
type RecurringScheduler struct {
	Service       *Service
	CheckInterval time.Duration
	Lookahead     int
	Enabled       bool

	logger zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecurringScheduler creates a new scheduler.
func NewRecurringScheduler(svc *Service, logger zerolog.Logger) *RecurringScheduler {
	return &RecurringScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Lookahead:     1,
		Enabled:       true,
		logger:        logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (rs *RecurringScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info().Msg("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.logger.Info().
		Dur("interval", rs.CheckInterval).
		Int("lookahead", rs.Lookahead).
		Msg("scheduler started")
}

// Stop stops the scheduler.
func (rs *RecurringScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info().Msg("scheduler stopped")
	}
}

// Run starts the scheduler and blocks until ctx is done.
func (rs *RecurringScheduler) Run(ctx context.Context) error {
	rs.Start()
	<-ctx.Done()
	rs.Stop()
	return nil
}

func (rs *RecurringScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RecurringScheduler) RunNow() {
	rs.checkAndProcess()
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RecurringScheduler) NextRunTime() time.Time {
	return rs.Service.now().Add(rs.CheckInterval)
}

func (rs *RecurringScheduler) checkAndProcess() {
	ctx := context.Background()
	from := ledger.PeriodOf(rs.Service.now())

	results, err := rs.Service.MaterializeAhead(ctx, from, rs.Lookahead)
	if err != nil {
		rs.logger.Error().Err(err).Str("from", from.String()).Msg("recurring materialization failed")
		return
	}

	created, failed, deactivated := 0, 0, 0
	for _, res := range results {
		created += len(res.Created)
		failed += res.Failed
		deactivated += len(res.Deactivated)
	}
	if created > 0 || failed > 0 || deactivated > 0 {
		rs.logger.Info().
			Str("from", from.String()).
			Int("months", len(results)).
			Int("created", created).
			Int("failed", failed).
			Int("deactivated", deactivated).
			Msg("recurring materialization completed")
	}
}
