package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	QueueErrorTypeDeadlineExceeded = "deadline_exceeded"
	QueueErrorTypeHandler          = "handler"
	QueueErrorTypeDB               = "db"
	QueueErrorTypeUnknown          = "unknown"
)

const (
	QueueDeferredReasonSkipLockedEmpty = "skip_locked_empty"
	QueueDeferredReasonNotDue          = "not_due"
)

const (
	LockResourceNotificationsClaim = "notifications_claim"
	LockResourceBlockingAppend     = "blocking_states_append"
)

// QueueMetrics captures notification queue health signals.
type QueueMetrics struct {
	entriesPosted    *prometheus.CounterVec
	entriesClaimed   *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	rescheduled      *prometheus.CounterVec
	failedTerminal   *prometheus.CounterVec
	batchDeferred    *prometheus.CounterVec
	runLoopLag       prometheus.Histogram
	dbLockWait       *prometheus.HistogramVec
}

var (
	queueMu       sync.Mutex
	queueInstance *QueueMetrics
)

// Queue returns the process-wide queue metrics, registering them on first use.
func Queue() *QueueMetrics {
	queueMu.Lock()
	defer queueMu.Unlock()
	if queueInstance == nil {
		queueInstance = newQueueMetrics(prometheus.DefaultRegisterer)
	}
	return queueInstance
}

// ResetQueueMetricsForTest swaps in a throwaway registry.
func ResetQueueMetricsForTest() {
	queueMu.Lock()
	defer queueMu.Unlock()
	queueInstance = newQueueMetrics(prometheus.NewRegistry())
}

func newQueueMetrics(registerer prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		entriesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_entries_posted_total",
			Help: "Notification entries posted, by queue.",
		}, []string{"queue"}),
		entriesClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_entries_claimed_total",
			Help: "Notification entries claimed for dispatch, by queue.",
		}, []string{"queue"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duno_queue_dispatch_duration_seconds",
			Help:    "Handler dispatch latency, by queue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_dispatch_errors_total",
			Help: "Handler dispatch errors, by queue and error type.",
		}, []string{"queue", "error_type"}),
		rescheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_entries_rescheduled_total",
			Help: "Entries rescheduled for retry after a handler error.",
		}, []string{"queue"}),
		failedTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_entries_failed_total",
			Help: "Entries dropped after exhausting their error budget.",
		}, []string{"queue"}),
		batchDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duno_queue_batch_deferred_total",
			Help: "Claim batches that returned no work, by reason.",
		}, []string{"reason"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "duno_queue_run_loop_lag_seconds",
			Help:    "Delay between the scheduled and actual poll tick.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		dbLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duno_db_lock_wait_seconds",
			Help:    "Time spent waiting on row locks, by resource.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2},
		}, []string{"resource"}),
	}

	collectors := []prometheus.Collector{
		m.entriesPosted,
		m.entriesClaimed,
		m.dispatchDuration,
		m.dispatchErrors,
		m.rescheduled,
		m.failedTerminal,
		m.batchDeferred,
		m.runLoopLag,
		m.dbLockWait,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				continue
			}
		}
	}
	return m
}

func (m *QueueMetrics) IncPosted(queue string) {
	if m == nil {
		return
	}
	m.entriesPosted.WithLabelValues(queue).Inc()
}

func (m *QueueMetrics) IncClaimed(queue string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entriesClaimed.WithLabelValues(queue).Add(float64(count))
}

func (m *QueueMetrics) ObserveDispatch(queue string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

func (m *QueueMetrics) IncDispatchError(queue string, err error) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(queue, ClassifyQueueError(err)).Inc()
}

func (m *QueueMetrics) IncRescheduled(queue string) {
	if m == nil {
		return
	}
	m.rescheduled.WithLabelValues(queue).Inc()
}

func (m *QueueMetrics) IncFailedTerminal(queue string) {
	if m == nil {
		return
	}
	m.failedTerminal.WithLabelValues(queue).Inc()
}

func (m *QueueMetrics) IncBatchDeferred(reason string) {
	if m == nil {
		return
	}
	m.batchDeferred.WithLabelValues(reason).Inc()
}

func (m *QueueMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || duration < 0 {
		return
	}
	m.runLoopLag.Observe(duration.Seconds())
}

func (m *QueueMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyQueueError buckets dispatch errors for the error counter.
func ClassifyQueueError(err error) string {
	switch {
	case err == nil:
		return QueueErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return QueueErrorTypeDeadlineExceeded
	case isDBError(err):
		return QueueErrorTypeDB
	default:
		return QueueErrorTypeHandler
	}
}

func isDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		containsAny(err.Error(), "lock", "deadlock", "database is locked")
}

func containsAny(msg string, needles ...string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
