package io

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/escalation/internal/dataframe"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Read reads the configured worksheet; its first row holds the headers.
// Cells are read raw so date cells arrive as Excel serial day numbers.
func (r *XLSXReader) Read() (*dataframe.DataFrame, error) {
	f, err := excelize.OpenReader(r.reader)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := r.options.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return dataframe.New(), nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return dataframe.New(), nil
	}

	return buildFrame(rows[0], rows[1:], r.options.NullValues, r.mem)
}

// Write writes the DataFrame as a header row followed by one row per record.
// Numeric and boolean columns keep their cell types; nulls are left blank.
func (w *XLSXWriter) Write(df *dataframe.DataFrame) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := w.options.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("naming sheet: %w", err)
		}
	}

	columns := df.Columns()
	header := make([]interface{}, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}

	cells := make([][]interface{}, df.Len())
	for i := range cells {
		cells[i] = make([]interface{}, len(columns))
	}
	for j, name := range columns {
		column, _ := df.Column(name)
		fillCells(cells, j, column)
	}

	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	if err := f.Write(w.writer); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func fillCells(cells [][]interface{}, col int, column dataframe.ISeries) {
	arr := column.Array()
	defer arr.Release()

	for i := range cells {
		if arr.IsNull(i) {
			continue
		}
		switch typed := arr.(type) {
		case *array.Float64:
			cells[i][col] = typed.Value(i)
		case *array.Int64:
			cells[i][col] = typed.Value(i)
		case *array.Boolean:
			cells[i][col] = typed.Value(i)
		default:
			cells[i][col] = column.GetAsString(i)
		}
	}
}
