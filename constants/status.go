package constants

// QueueStatus is the canonical lifecycle status for rows in receipt_queue.
type QueueStatus string

// Stable values (store these exact strings in DB).
const (
	StatusUnprocessed QueueStatus = "UNPROCESSED" // registered, waiting for a worker run
	StatusProcessing  QueueStatus = "PROCESSING"  // claimed by a worker run
	StatusProcessed   QueueStatus = "PROCESSED"   // terminal success, ledger row exists
	StatusError       QueueStatus = "ERROR"       // failed, claimable again after next_retry_at
)

// Claimable reports whether a row in this status may be reserved.
func (s QueueStatus) Claimable() bool {
	return s == StatusUnprocessed || s == StatusError
}

// CronLockName is the lock serializing receipt worker runs. The cron_locks
// table is generic; any named lock shares the same mechanism.
const CronLockName = "process-receipts"
