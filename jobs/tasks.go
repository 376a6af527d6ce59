// Package jobs wires the background work the request path must not carry:
// the reservation sweep, the invoice overdue scan, and idempotency-key
// retention.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReservationSweep releases stock holds whose TTL has lapsed
	// without a commit or release.
	TaskReservationSweep = "inventory:reservation_sweep"
	// TaskOverdueScan logs unpaid invoices past their due date.
	TaskOverdueScan = "invoices:overdue_scan"
	// TaskIdempotencyCleanup trims processed payment-event keys past
	// retention.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// NewReservationSweepTask constructs the sweep task. The payload is empty;
// the handler works off the database.
func NewReservationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReservationSweep, nil)
}

// NewOverdueScanTask constructs the overdue-scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
