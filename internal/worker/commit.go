package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/entity"
	"github.com/keihibook/keihibook/internal/extract"
)

// processItem runs one reserved item through fetch, extraction and the
// ledger commit. The ledger insert commits in its own transaction before
// the queue status moves to PROCESSED; if the status update then fails, the
// error propagates and the item lands in ERROR with the ledger row already
// committed. The unique source-file index stops a later retry from writing
// a second entry, so the row is never duplicated.
func (r *Runner) processItem(ctx context.Context, item *entity.QueueItem) error {
	data, err := r.fetcher.Fetch(ctx, item.BlobURL)
	if err != nil {
		return err
	}

	rec, raw, err := r.extractor.Extract(ctx, data, item.MIMEType)
	if err != nil {
		return err
	}

	entry, err := r.buildLedgerEntry(rec, raw, item)
	if err != nil {
		return err
	}

	journalID, err := r.store.Ledger.Insert(ctx, entry)
	if err != nil {
		return err
	}

	if err := r.store.Queue.MarkProcessed(ctx, item.ReceiptID, journalID, raw); err != nil {
		// Narrow inconsistency window: ledger committed, status not updated.
		return common.WrapError(err,
			fmt.Sprintf("ledger entry %d committed but status update failed", journalID))
	}
	return nil
}

// buildLedgerEntry maps one extraction result onto a double-entry line:
// the expense on the debit side, paid from the configured default account
// on the credit side with the same amount and tax.
func (r *Runner) buildLedgerEntry(rec extract.Record, raw []byte, item *entity.QueueItem) (*entity.LedgerEntry, error) {
	txDate, err := time.Parse("2006-01-02", rec.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_date %q: %w", rec.TransactionDate, err)
	}

	debitAccount := rec.SuggestedDebitAccount
	if debitAccount == "" {
		debitAccount = r.ledger.DefaultDebitAccount
	}
	invoiceCategory := constants.NormalizeInvoiceCategory(rec.InvoiceCategory)

	return &entity.LedgerEntry{
		TransactionDate: txDate,

		DebitAccount:         debitAccount,
		DebitVendor:          rec.StoreName,
		DebitAmount:          rec.TotalAmount,
		DebitTax:             rec.TaxAmount,
		DebitInvoiceCategory: invoiceCategory,

		CreditAccount:         r.ledger.DefaultCreditAccount,
		CreditVendor:          "",
		CreditAmount:          rec.TotalAmount,
		CreditTax:             rec.TaxAmount,
		CreditInvoiceCategory: invoiceCategory,

		Description: rec.Description,
		Memo:        rec.Memo,

		SourceReceiptID: item.ReceiptID,
		SourceFileName:  item.FileName,
		SourceMIMEType:  item.MIMEType,
		ExtractResponse: raw,
	}, nil
}
