package repository

import (
	"context"
	"testing"
	"time"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/entity"
)

func sampleEntry(receiptID string) *entity.LedgerEntry {
	return &entity.LedgerEntry{
		TransactionDate:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		DebitAccount:          "雑費",
		DebitVendor:           "Cafe X",
		DebitAmount:           1200,
		DebitTax:              109,
		DebitInvoiceCategory:  constants.InvoiceQualified,
		CreditAccount:         "普通預金",
		CreditVendor:          "Cafe X",
		CreditAmount:          1200,
		CreditTax:             109,
		CreditInvoiceCategory: constants.InvoiceQualified,
		Description:           "コーヒー代",
		Memo:                  "打ち合わせ",
		SourceReceiptID:       receiptID,
		SourceFileName:        receiptID + ".jpg",
		SourceMIMEType:        "image/jpeg",
		ExtractResponse:       []byte(`{"store_name":"Cafe X"}`),
	}
}

func TestLedgerInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.Ledger.Insert(ctx, sampleEntry("r1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id2, err := store.Ledger.Insert(ctx, sampleEntry("r2"))
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("journal ids not increasing: %d then %d", id1, id2)
	}

	got, err := store.Ledger.GetByID(ctx, id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DebitAccount != "雑費" || got.DebitVendor != "Cafe X" || got.DebitAmount != 1200 {
		t.Errorf("debit side mismatch: %+v", got)
	}
	if got.CreditAccount != "普通預金" || got.CreditAmount != 1200 {
		t.Errorf("credit side mismatch: %+v", got)
	}
	if got.TransactionDate.Format("2006-01-02") != "2026-01-15" {
		t.Errorf("transaction_date = %v", got.TransactionDate)
	}
	if got.SourceReceiptID != "r1" || got.SourceFileName != "r1.jpg" {
		t.Errorf("source metadata mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("created_at not set")
	}

	if _, err := store.Ledger.GetByID(ctx, 9999); err == nil {
		t.Errorf("get of missing journal id should fail")
	}
}

func TestLedgerDuplicateSourceRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Ledger.Insert(ctx, sampleEntry("r1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Ledger.Insert(ctx, sampleEntry("r1")); err == nil {
		t.Fatal("second insert for the same receipt should violate the unique index")
	}
}

func TestLedgerListSearchAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		e := sampleEntry(id)
		if id == "r3" {
			e.DebitVendor = "Hotel Z"
			e.Description = "宿泊費"
		}
		if _, err := store.Ledger.Insert(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	entries, total, err := store.Ledger.List(ctx, ListLedgerParams{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(entries) != 2 {
		t.Errorf("page size = %d, want 2", len(entries))
	}

	entries, total, err = store.Ledger.List(ctx, ListLedgerParams{Limit: 10, Offset: 2})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if total != 3 || len(entries) != 1 {
		t.Errorf("offset page: total=%d len=%d", total, len(entries))
	}

	entries, total, err = store.Ledger.List(ctx, ListLedgerParams{Query: "Hotel", Limit: 10})
	if err != nil {
		t.Fatalf("list search: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("search: total=%d len=%d", total, len(entries))
	}
	if entries[0].DebitVendor != "Hotel Z" {
		t.Errorf("search returned wrong row: %+v", entries[0])
	}
}

func TestLedgerUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Ledger.Insert(ctx, sampleEntry("r1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	newDate := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	newAccount := "会議費"
	newAmount := int64(1500)
	newMemo := "修正済み"
	got, err := store.Ledger.Update(ctx, id, UpdateLedgerRequest{
		TransactionDate: &newDate,
		DebitAccount:    &newAccount,
		DebitAmount:     &newAmount,
		Memo:            &newMemo,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DebitAccount != "会議費" || got.DebitAmount != 1500 || got.Memo != "修正済み" {
		t.Errorf("update not applied: %+v", got)
	}
	if got.TransactionDate.Format("2006-01-02") != "2026-02-01" {
		t.Errorf("transaction_date = %v", got.TransactionDate)
	}
	// Untouched fields survive.
	if got.CreditAccount != "普通預金" || got.Description != "コーヒー代" {
		t.Errorf("untouched fields changed: %+v", got)
	}

	// Empty update is a read.
	same, err := store.Ledger.Update(ctx, id, UpdateLedgerRequest{})
	if err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if same.DebitAmount != 1500 {
		t.Errorf("empty update changed row: %+v", same)
	}

	if _, err := store.Ledger.Update(ctx, 9999, UpdateLedgerRequest{Memo: &newMemo}); err == nil {
		t.Errorf("update of missing journal id should fail")
	}
}
