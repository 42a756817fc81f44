package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoices-tracker/internal/storage"
)

const xlsxSheet = "Invoices"

// XLSX keeps one workbook per user under dir.
type XLSX struct {
	dir string
	mu  sync.Mutex
}

func NewXLSX(dir string) *XLSX {
	return &XLSX{dir: dir}
}

// Path is the workbook location for a user.
func (x *XLSX) Path(userID string) string {
	return filepath.Join(x.dir, storage.SafeName(userID)+".xlsx")
}

func (x *XLSX) AppendRow(ctx context.Context, userID string, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := x.open(userID)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	if err := writeRow(f, len(rows)+1, row); err != nil {
		return err
	}
	return f.SaveAs(x.Path(userID))
}

func (x *XLSX) Rewrite(ctx context.Context, userID string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	f := newWorkbook()
	defer f.Close()
	if err := writeRow(f, 1, Header); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, i+2, r); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return err
	}
	return f.SaveAs(x.Path(userID))
}

// open returns the user's workbook, creating it with a header row.
func (x *XLSX) open(userID string) (*excelize.File, error) {
	path := x.Path(userID)
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		return f, nil
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return nil, err
	}
	f := newWorkbook()
	if err := writeRow(f, 1, Header); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func newWorkbook() *excelize.File {
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", xlsxSheet)
	return f
}

func writeRow(f *excelize.File, n int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(row))
	for i, v := range row {
		vals[i] = v
	}
	if err := f.SetSheetRow(xlsxSheet, cell, &vals); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}
