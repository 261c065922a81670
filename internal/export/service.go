package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/keihibook/keihibook/internal/repository"
)

// Service produces XLSX bytes for ledger exports.
type Service struct {
	ledger repository.LedgerStore
	logger *slog.Logger
}

func NewService(ledger repository.LedgerStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger}
}

// exportPageSize bounds each listing query while paging through the ledger.
const exportPageSize = 500

// ExportLedgerXLSX returns an XLSX workbook with every ledger row matching
// the query (all rows when the query is empty), newest first.
func (s *Service) ExportLedgerXLSX(ctx context.Context, query string) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Journal"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Journal ID",
		"Transaction Date",
		"Debit Account",
		"Debit Vendor",
		"Debit Amount",
		"Debit Tax",
		"Debit Invoice Category",
		"Credit Account",
		"Credit Amount",
		"Credit Tax",
		"Description",
		"Memo",
		"Source File",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	offset := 0
	count := 0
	for {
		entries, total, err := s.ledger.List(ctx, repository.ListLedgerParams{
			Query:  query,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("query ledger: %w", err)
		}
		for _, e := range entries {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, e.JournalID)
			write(2, e.TransactionDate.Format("2006-01-02"))
			write(3, e.DebitAccount)
			write(4, e.DebitVendor)
			write(5, e.DebitAmount)
			write(6, e.DebitTax)
			write(7, e.DebitInvoiceCategory)
			write(8, e.CreditAccount)
			write(9, e.CreditAmount)
			write(10, e.CreditTax)
			write(11, truncate(e.Description, 140))
			write(12, truncate(e.Memo, 140))
			write(13, e.SourceFileName)
			row++
			count++
		}
		offset += len(entries)
		if len(entries) == 0 || offset >= total {
			break
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "B", "B", 14) // date
	_ = f.SetColWidth(sheet, "C", "D", 22) // debit side
	_ = f.SetColWidth(sheet, "H", "H", 22) // credit account
	_ = f.SetColWidth(sheet, "K", "L", 40) // description, memo
	_ = f.SetColWidth(sheet, "M", "M", 40) // source file

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", count,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
