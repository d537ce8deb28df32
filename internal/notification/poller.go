// Package notification runs the durable queue: producers post entries through
// the Service, the Poller claims due entries and dispatches them to the
// handler registered for their queue name.
package notification

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/config"
	notificationdomain "github.com/smallbiznis/duno/internal/notification/domain"
	obscontext "github.com/smallbiznis/duno/internal/observability/context"
	obsmetrics "github.com/smallbiznis/duno/internal/observability/metrics"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PollerParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Repo     notificationdomain.Repository
	Registry *Registry
}

// Poller claims due entries on a fixed interval and dispatches them across a
// bounded worker pool. Entries with the same key serialize on the claim row
// lock; independent keys proceed concurrently.
type Poller struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.QueueConfig
	repo     notificationdomain.Repository
	registry *Registry
	owner    string
}

func NewPoller(p PollerParam) *Poller {
	hostname, _ := os.Hostname()
	return &Poller{
		db:       p.DB,
		log:      p.Log.Named("notification.poller").With(zap.String("component", "notification_poller")),
		clock:    p.Clock,
		cfg:      p.Config.Queue,
		repo:     p.Repo,
		registry: p.Registry,
		owner:    fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

// RunForever polls until the context is cancelled.
func (p *Poller) RunForever(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	nextRun := p.clock.Now().Add(p.cfg.PollInterval)
	queueMetrics := obsmetrics.Queue()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			queueMetrics.ObserveRunLoopLag(runLag)
		}
		if _, err := p.RunOnce(ctx); err != nil {
			p.log.Warn("queue poll failed", zap.Error(err))
		}
		nextRun = nextRun.Add(p.cfg.PollInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due entries and dispatches all of them,
// returning the number processed. Draining continues until a claim comes
// back empty so a burst does not wait for the next tick.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		processed, err := p.runBatch(ctx)
		total += processed
		if err != nil {
			return total, err
		}
		if processed == 0 {
			return total, nil
		}
	}
}

func (p *Poller) runBatch(ctx context.Context) (int, error) {
	now := p.clock.Now()
	queueMetrics := obsmetrics.Queue()

	claimCtx, cancel := context.WithTimeout(ctx, p.cfg.ClaimTimeout)
	var entries []notificationdomain.Notification
	err := p.db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		var claimErr error
		entries, claimErr = p.repo.ClaimDue(claimCtx, tx, p.owner, now, p.cfg.ClaimBatch)
		return claimErr
	})
	cancel()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		queueMetrics.IncBatchDeferred(obsmetrics.QueueDeferredReasonSkipLockedEmpty)
		return 0, nil
	}

	byQueue := map[string]int{}
	for _, entry := range entries {
		byQueue[entry.QueueName]++
	}
	for queue, count := range byQueue {
		queueMetrics.IncClaimed(queue, count)
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan notificationdomain.Notification)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				p.dispatch(ctx, entry)
			}
		}()
	}
	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	return len(entries), nil
}

// dispatch runs one claimed entry through its handler and settles the row.
// Handler panics are contained: a panicking entry follows the same error
// path as a returned error.
func (p *Poller) dispatch(parent context.Context, entry notificationdomain.Notification) {
	queueMetrics := obsmetrics.Queue()
	log := p.log.With(
		zap.String("queue", entry.QueueName),
		zap.String("entry_key", entry.EntryKey),
		zap.String("entry_id", entry.ID.String()),
	)

	ctx := orgcontext.WithOrgID(parent, entry.OrgID)
	ctx = obscontext.WithActor(ctx, "system", "notification_poller")
	ctx, _ = correlation.EnsureCorrelationID(ctx)

	handler, ok := p.registry.Lookup(entry.QueueName)
	if !ok {
		log.Error("dropping entry", zap.Error(notificationdomain.ErrUnknownQueue))
		p.settleFailed(ctx, entry, queueMetrics)
		return
	}

	start := time.Now()
	err := p.safeHandle(ctx, handler, entry)
	queueMetrics.ObserveDispatch(entry.QueueName, time.Since(start))

	if err == nil {
		if markErr := p.repo.MarkProcessed(ctx, p.db, entry.ID, p.clock.Now()); markErr != nil {
			log.Error("failed to mark entry processed", zap.Error(markErr))
		}
		return
	}

	queueMetrics.IncDispatchError(entry.QueueName, err)
	errorCount := entry.ErrorCount + 1
	if errorCount >= p.cfg.MaxErrorCount {
		log.Error("entry exhausted error budget, dropping",
			zap.Int("error_count", errorCount),
			zap.Error(err),
		)
		p.settleFailed(ctx, entry, queueMetrics)
		return
	}

	now := p.clock.Now()
	availableAt := now.Add(p.backoff(errorCount))
	if reschedErr := p.repo.Reschedule(ctx, p.db, entry.ID, availableAt, now, errorCount); reschedErr != nil {
		log.Error("failed to reschedule entry", zap.Error(reschedErr))
		return
	}
	queueMetrics.IncRescheduled(entry.QueueName)
	log.Warn("entry rescheduled after handler error",
		zap.Int("error_count", errorCount),
		zap.Time("available_at", availableAt),
		zap.Error(err),
	)
}

func (p *Poller) safeHandle(ctx context.Context, handler notificationdomain.Handler, entry notificationdomain.Notification) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return handler.Handle(ctx, entry)
}

func (p *Poller) settleFailed(ctx context.Context, entry notificationdomain.Notification, queueMetrics *obsmetrics.QueueMetrics) {
	if err := p.repo.MarkFailed(ctx, p.db, entry.ID, p.clock.Now(), entry.ErrorCount+1); err != nil {
		p.log.Error("failed to mark entry failed", zap.Error(err))
		return
	}
	queueMetrics.IncFailedTerminal(entry.QueueName)
}

// backoff grows exponentially with the error count, capped.
func (p *Poller) backoff(errorCount int) time.Duration {
	backoff := p.cfg.BackoffBase
	for i := 1; i < errorCount; i++ {
		backoff *= 2
		if backoff >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	if backoff > p.cfg.BackoffCap {
		return p.cfg.BackoffCap
	}
	return backoff
}
