// Package sheets is the Backend on a quota-limited spreadsheet service.
//
// Every logical table is one sheet whose first row is a header. Item
// attributes live in one sheet per category, named attr_<category>, whose
// columns follow the category schema. All calls go through a Client; wrap a
// remote client with NewResilient so calls respect the service quota.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSheetNotFound is returned by a Client for a sheet that does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// Client reads and writes whole rows of named sheets. Row indexes are zero
// based and include the header row.
type Client interface {
	// Rows returns every row of sheet, header first.
	Rows(ctx context.Context, sheet string) ([][]string, error)
	// Append adds row after the last row.
	Append(ctx context.Context, sheet string, row []string) error
	// Update overwrites the row at index.
	Update(ctx context.Context, sheet string, index int, row []string) error
	// DeleteRow removes the row at index, shifting later rows up.
	DeleteRow(ctx context.Context, sheet string, index int) error
	// EnsureSheet creates sheet with header if it does not exist yet.
	EnsureSheet(ctx context.Context, sheet string, header []string) error
}

const maxSheetName = 31

// SheetName turns a category into a valid attribute sheet name.
func SheetName(category string) string {
	name := "attr_" + strings.ToLower(strings.TrimSpace(category))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\', '\'':
			return '_'
		}
		return r
	}, name)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// StatusError is a non-success response of the remote service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sheet service returned status %d", e.Code)
	}
	return fmt.Sprintf("sheet service returned status %d: %s", e.Code, e.Message)
}

// StatusCode lets the resilience layer recognise quota responses.
func (e *StatusError) StatusCode() int { return e.Code }
