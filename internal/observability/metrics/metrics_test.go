package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("account_id", "456"),
		attribute.String("unit", "requests"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "unit" && attrs[1].Key != "unit" {
		t.Fatalf("expected unit to be retained")
	}
}

func TestClassifyQueueError(t *testing.T) {
	if got := ClassifyQueueError(context.DeadlineExceeded); got != QueueErrorTypeDeadlineExceeded {
		t.Fatalf("deadline: got %q", got)
	}
	if got := ClassifyQueueError(errors.New("handler blew up")); got != QueueErrorTypeHandler {
		t.Fatalf("handler: got %q", got)
	}
	if got := ClassifyQueueError(errors.New("database is locked")); got != QueueErrorTypeDB {
		t.Fatalf("db: got %q", got)
	}
}

func TestQueueMetricsRecordWithoutPanic(t *testing.T) {
	ResetQueueMetricsForTest()
	m := Queue()
	m.IncPosted("overdue-check")
	m.IncClaimed("overdue-check", 3)
	m.ObserveDispatch("overdue-check", 0)
	m.IncDispatchError("overdue-check", errors.New("boom"))
	m.IncRescheduled("overdue-check")
	m.IncFailedTerminal("overdue-check")
	m.IncBatchDeferred(QueueDeferredReasonSkipLockedEmpty)
	m.ObserveRunLoopLag(0)
	m.ObserveDBLockWait(LockResourceNotificationsClaim, 0)
}
