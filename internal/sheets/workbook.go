package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook is a Client over a local spreadsheet file. It needs no quota
// handling and suits single-user installs and tests.
type Workbook struct {
	mu   sync.Mutex
	f    *excelize.File
	path string
}

// OpenWorkbook opens the workbook at path, creating an empty one if the file
// does not exist. An empty path keeps the workbook in memory only.
func OpenWorkbook(path string) (*Workbook, error) {
	if path == "" {
		return &Workbook{f: excelize.NewFile()}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		f = excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("creating workbook %s: %w", path, err)
		}
	}
	return &Workbook{f: f, path: path}, nil
}

// Close releases the workbook file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *Workbook) Rows(_ context.Context, sheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.exists(sheet); err != nil {
		return nil, err
	}
	rows, err := w.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (w *Workbook) Append(_ context.Context, sheet string, row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.exists(sheet); err != nil {
		return err
	}
	rows, err := w.f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if err := w.setRow(sheet, len(rows), row, 0); err != nil {
		return err
	}
	return w.save()
}

func (w *Workbook) Update(_ context.Context, sheet string, index int, row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.exists(sheet); err != nil {
		return err
	}
	rows, err := w.f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("row %d of sheet %s: out of range", index, sheet)
	}
	if err := w.setRow(sheet, index, row, len(rows[index])); err != nil {
		return err
	}
	return w.save()
}

func (w *Workbook) DeleteRow(_ context.Context, sheet string, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.exists(sheet); err != nil {
		return err
	}
	if err := w.f.RemoveRow(sheet, index+1); err != nil {
		return fmt.Errorf("deleting row %d of sheet %s: %w", index, sheet, err)
	}
	return w.save()
}

func (w *Workbook) EnsureSheet(_ context.Context, sheet string, header []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.exists(sheet) == nil {
		return nil
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	if err := w.setRow(sheet, 0, header, 0); err != nil {
		return err
	}
	return w.save()
}

func (w *Workbook) exists(sheet string) error {
	idx, err := w.f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("looking up sheet %s: %w", sheet, err)
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	return nil
}

// setRow writes row at index, blanking any of the first width cells it does
// not cover.
func (w *Workbook) setRow(sheet string, index int, row []string, width int) error {
	cells := make([]any, max(len(row), width))
	for i := range cells {
		cells[i] = ""
		if i < len(row) {
			cells[i] = row[i]
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, index+1)
	if err != nil {
		return fmt.Errorf("addressing row %d: %w", index, err)
	}
	if err := w.f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d of sheet %s: %w", index, sheet, err)
	}
	return nil
}

func (w *Workbook) save() error {
	if w.path == "" {
		return nil
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}
