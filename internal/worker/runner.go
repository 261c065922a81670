package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/extract"
	"github.com/keihibook/keihibook/internal/payload"
	"github.com/keihibook/keihibook/internal/repository"
)

// Summary is what one worker run reports back to its trigger.
type Summary struct {
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// Runner executes one receipt-processing run: take the exclusion lock,
// reserve a batch, process it sequentially, release the lock. Overlapping
// triggers serialize on the lock; the loser does no work.
type Runner struct {
	store     *repository.Store
	fetcher   payload.Fetcher
	extractor extract.Extractor
	cfg       common.WorkerConfig
	ledger    common.LedgerConfig
	holder    string
	logger    *slog.Logger
}

func NewRunner(
	store *repository.Store,
	fetcher payload.Fetcher,
	extractor extract.Extractor,
	cfg common.WorkerConfig,
	ledger common.LedgerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return &Runner{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		ledger:    ledger,
		holder:    host + "-" + uuid.New().String()[:8],
		logger:    logger,
	}
}

// RunOnce performs a single run. A run that finds the lock held returns a
// skipped summary, not an error; item-level failures are absorbed into the
// failed count.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()

	acquired, err := r.store.Locks.Acquire(ctx, constants.CronLockName, r.cfg.LockTTL, r.holder)
	if err != nil {
		return Summary{}, common.WrapError(err, "acquire exclusion lock")
	}
	if !acquired {
		r.logger.Info("worker.run.skipped", "reason", "locked", "holder", r.holder)
		return Summary{Skipped: true, Reason: "locked"}, nil
	}
	defer func() {
		// Release must run on every exit path; a missed release starves
		// subsequent runs until the TTL expires. Survives ctx cancellation.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.store.Locks.Release(rctx, constants.CronLockName, r.holder); err != nil {
			r.logger.Error("worker.run.release_failed", "error", err)
		}
	}()

	var sum Summary
	items, err := r.store.Queue.Reserve(ctx, r.cfg.MaxFilesPerRun)
	if err != nil {
		return sum, common.WrapError(err, "reserve batch")
	}

	for _, item := range items {
		if err := r.processItem(ctx, item); err != nil {
			sum.Failed++
			if mErr := r.store.Queue.MarkError(ctx, item.ReceiptID, err.Error(), r.cfg.RetryBackoff); mErr != nil {
				r.logger.Error("worker.item.mark_error_failed", "receipt_id", item.ReceiptID, "error", mErr)
			}
			continue
		}
		sum.Processed++
	}

	r.logger.Info("worker.run.ok",
		"reserved", len(items),
		"processed", sum.Processed,
		"failed", sum.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}
