package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
	"github.com/keihibook/keihibook/internal/extract"
	"github.com/keihibook/keihibook/internal/payload"
	"github.com/keihibook/keihibook/internal/repository"
)

type fakeExtractor struct {
	fn func(data []byte, mimeType string) (extract.Record, []byte, error)
}

func (f *fakeExtractor) Extract(_ context.Context, data []byte, mimeType string) (extract.Record, []byte, error) {
	return f.fn(data, mimeType)
}

func goodExtractor() *fakeExtractor {
	return &fakeExtractor{fn: func([]byte, string) (extract.Record, []byte, error) {
		rec := extract.Record{
			StoreName:       "Cafe X",
			TransactionDate: "2026-01-15",
			TotalAmount:     1200,
			TaxAmount:       109,
			InvoiceCategory: constants.InvoiceQualified,
			Description:     "コーヒー代",
		}
		return rec, []byte(`{"store_name":"Cafe X","total_amount":1200}`), nil
	}}
}

type failingLedger struct {
	repository.LedgerStore
}

func (f *failingLedger) Insert(context.Context, *entity.LedgerEntry) (int64, error) {
	return 0, errors.New("ledger insert refused")
}

type failingMarkProcessed struct {
	repository.QueueStore
}

func (f *failingMarkProcessed) MarkProcessed(context.Context, string, int64, []byte) error {
	return errors.New("status update refused")
}

func newTestRig(t *testing.T, ex extract.Extractor) (*Runner, *repository.Store, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := repository.NewSQLiteStore(db, logger)

	blobs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(blobs.Close)

	cfg := common.WorkerConfig{
		MaxFilesPerRun: 10,
		MaxFileBytes:   1 << 20,
		LockTTL:        time.Minute,
		RetryBackoff:   50 * time.Millisecond,
		FetchTimeout:   5 * time.Second,
	}
	ledgerCfg := common.LedgerConfig{
		DefaultDebitAccount:  "雑費",
		DefaultCreditAccount: "普通預金",
	}
	fetcher := payload.NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxFileBytes, logger)
	return NewRunner(store, fetcher, ex, cfg, ledgerCfg, logger), store, blobs
}

func registerItem(t *testing.T, store *repository.Store, id, blobURL string) {
	t.Helper()
	err := store.Queue.Register(context.Background(), repository.RegisterRequest{
		ReceiptID: id,
		BlobURL:   blobURL,
		Pathname:  "receipts/" + id,
		FileName:  id + ".jpg",
		MIMEType:  "image/jpeg",
		SizeBytes: 10,
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestRunOnceRoundTrip(t *testing.T) {
	runner, store, blobs := newTestRig(t, goodExtractor())
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/r1")

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Skipped || sum.Processed != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	item, err := store.Queue.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != constants.StatusProcessed {
		t.Errorf("status = %s, want PROCESSED", item.Status)
	}
	if item.LedgerJournalID == nil {
		t.Fatal("item missing ledger journal id")
	}

	entry, err := store.Ledger.GetByID(ctx, *item.LedgerJournalID)
	if err != nil {
		t.Fatalf("get ledger entry: %v", err)
	}
	if entry.DebitVendor != "Cafe X" || entry.DebitAmount != 1200 || entry.CreditAmount != 1200 {
		t.Errorf("ledger sides mismatch: %+v", entry)
	}
	// No suggestion from the extractor, so the configured default applies.
	if entry.DebitAccount != "雑費" || entry.CreditAccount != "普通預金" {
		t.Errorf("accounts mismatch: %+v", entry)
	}
	if entry.SourceReceiptID != "r1" {
		t.Errorf("source receipt id = %s", entry.SourceReceiptID)
	}

	// Lock is free again after the run.
	ok, err := store.Locks.Acquire(ctx, constants.CronLockName, time.Minute, "probe")
	if err != nil || !ok {
		t.Errorf("lock not released after run: ok=%v err=%v", ok, err)
	}
}

func TestRunOnceSuggestedAccountWins(t *testing.T) {
	ex := &fakeExtractor{fn: func([]byte, string) (extract.Record, []byte, error) {
		rec := extract.Record{
			StoreName:             "Hotel Z",
			TransactionDate:       "2026-03-02",
			TotalAmount:           9800,
			InvoiceCategory:       constants.InvoiceCategorized,
			SuggestedDebitAccount: "旅費交通費",
		}
		return rec, []byte(`{}`), nil
	}}
	runner, store, blobs := newTestRig(t, ex)
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/r1")
	if _, err := runner.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	item, _ := store.Queue.GetByID(ctx, "r1")
	if item == nil || item.LedgerJournalID == nil {
		t.Fatalf("item not processed: %+v", item)
	}
	entry, err := store.Ledger.GetByID(ctx, *item.LedgerJournalID)
	if err != nil {
		t.Fatalf("get ledger entry: %v", err)
	}
	if entry.DebitAccount != "旅費交通費" {
		t.Errorf("debit account = %s, want suggested", entry.DebitAccount)
	}
	if entry.DebitInvoiceCategory != constants.InvoiceCategorized {
		t.Errorf("invoice category = %s", entry.DebitInvoiceCategory)
	}
}

func TestRunOnceSkippedWhenLocked(t *testing.T) {
	runner, store, blobs := newTestRig(t, goodExtractor())
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/r1")
	ok, err := store.Locks.Acquire(ctx, constants.CronLockName, time.Minute, "other-worker")
	if err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Skipped || sum.Reason != "locked" {
		t.Fatalf("summary = %+v, want skipped", sum)
	}

	item, _ := store.Queue.GetByID(ctx, "r1")
	if item.Status != constants.StatusUnprocessed {
		t.Errorf("skipped run touched the queue: %s", item.Status)
	}
}

func TestRunOnceExtractionFailureThenRetry(t *testing.T) {
	calls := 0
	ex := &fakeExtractor{fn: func(data []byte, mime string) (extract.Record, []byte, error) {
		calls++
		if calls == 1 {
			return extract.Record{}, nil, errors.New("model unavailable")
		}
		return goodExtractor().fn(data, mime)
	}}
	runner, store, blobs := newTestRig(t, ex)
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/r1")

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 || sum.Processed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	item, _ := store.Queue.GetByID(ctx, "r1")
	if item.Status != constants.StatusError || item.ErrorCount != 1 {
		t.Fatalf("item after failure: %+v", item)
	}
	if item.LastErrorMessage == nil || !strings.Contains(*item.LastErrorMessage, "model unavailable") {
		t.Errorf("last_error_message = %v", item.LastErrorMessage)
	}

	// Within backoff the item is invisible to the next run.
	sum, err = runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run during backoff: %v", err)
	}
	if sum.Processed != 0 || sum.Failed != 0 {
		t.Fatalf("backoff not honored: %+v", sum)
	}

	time.Sleep(80 * time.Millisecond)

	sum, err = runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if sum.Processed != 1 {
		t.Fatalf("retry summary = %+v", sum)
	}
	item, _ = store.Queue.GetByID(ctx, "r1")
	if item.Status != constants.StatusProcessed {
		t.Errorf("item not processed on retry: %s", item.Status)
	}
}

func TestRunOnceFetchFailure(t *testing.T) {
	runner, store, blobs := newTestRig(t, goodExtractor())
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/missing")

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	item, _ := store.Queue.GetByID(ctx, "r1")
	if item.Status != constants.StatusError {
		t.Errorf("status = %s, want ERROR", item.Status)
	}
}

func TestRunOnceLedgerInsertFailureLeavesNoEntry(t *testing.T) {
	runner, store, blobs := newTestRig(t, goodExtractor())
	ctx := context.Background()

	store.Ledger = &failingLedger{LedgerStore: store.Ledger}
	registerItem(t, store, "r1", blobs.URL+"/r1")

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	item, _ := store.Queue.GetByID(ctx, "r1")
	if item.Status != constants.StatusError {
		t.Errorf("status = %s, want ERROR", item.Status)
	}
	if item.LedgerJournalID != nil {
		t.Errorf("journal id set despite insert failure")
	}
}

func TestRunOnceStatusUpdateFailureKeepsLedgerRow(t *testing.T) {
	runner, store, blobs := newTestRig(t, goodExtractor())
	ctx := context.Background()

	realQueue := store.Queue
	store.Queue = &failingMarkProcessed{QueueStore: realQueue}
	registerItem(t, store, "r1", blobs.URL+"/r1")

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	// Ledger row committed first; the failed status update moves the item to
	// ERROR with a message pointing at the orphaned entry.
	_, total, err := store.Ledger.List(ctx, repository.ListLedgerParams{Limit: 10})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if total != 1 {
		t.Fatalf("ledger rows = %d, want 1", total)
	}

	item, err := realQueue.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != constants.StatusError {
		t.Errorf("status = %s, want ERROR", item.Status)
	}
	if item.LastErrorMessage == nil || !strings.Contains(*item.LastErrorMessage, "committed but status update failed") {
		t.Errorf("last_error_message = %v", item.LastErrorMessage)
	}

	// A retry after backoff hits the unique source-file index instead of
	// writing a second entry.
	time.Sleep(80 * time.Millisecond)
	store.Queue = realQueue
	sum, err = runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("retry summary = %+v", sum)
	}
	_, total, err = store.Ledger.List(ctx, repository.ListLedgerParams{Limit: 10})
	if err != nil {
		t.Fatalf("list ledger after retry: %v", err)
	}
	if total != 1 {
		t.Errorf("duplicate ledger rows after retry: %d", total)
	}
}

func TestRunOnceBadDateFromExtractor(t *testing.T) {
	ex := &fakeExtractor{fn: func([]byte, string) (extract.Record, []byte, error) {
		return extract.Record{
			StoreName:       "Cafe X",
			TransactionDate: "2026/01/15",
			InvoiceCategory: constants.InvoiceQualified,
		}, []byte(`{}`), nil
	}}
	runner, store, blobs := newTestRig(t, ex)
	ctx := context.Background()

	registerItem(t, store, "r1", blobs.URL+"/r1")
	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	item, _ := store.Queue.GetByID(ctx, "r1")
	if item.LastErrorMessage == nil || !strings.Contains(*item.LastErrorMessage, "invalid transaction_date") {
		t.Errorf("last_error_message = %v", item.LastErrorMessage)
	}
}
