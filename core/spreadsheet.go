package core

import (
	"encoding/csv"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

type SheetFormat string

const (
	FormatCSV  SheetFormat = "csv"
	FormatXLSX SheetFormat = "xlsx"

	defaultSheet = "Sheet1"
)

var ErrUnknownSheetFormat = errors.New("unsupported format; expected csv or xlsx")

// ParseSheetFormat accepts a bare format ("csv") or a file name ("students.xlsx").
func ParseSheetFormat(s string) (SheetFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if ext := path.Ext(s); ext != "" {
		s = ext[1:]
	}
	switch SheetFormat(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", ErrUnknownSheetFormat
}

func (f SheetFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ReadSheet returns the rows of a CSV file or of the first sheet of an XLSX workbook.
// Blank rows are dropped.
func ReadSheet(format SheetFormat, r io.Reader) ([][]string, error) {
	var rows [][]string
	switch format {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		records, err := cr.ReadAll()
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		rows = records
	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "opening xlsx")
		}
		defer func() { _ = f.Close() }()
		if rows, err = f.GetRows(f.GetSheetName(0)); err != nil {
			return nil, errors.Wrap(err, "reading xlsx rows")
		}
	default:
		return nil, ErrUnknownSheetFormat
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		blank := true
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
			if row[i] != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out, nil
}

// WriteSheet writes rows as CSV or as a single sheet XLSX workbook. The first row is the header.
func WriteSheet(format SheetFormat, w io.Writer, sheet string, rows [][]string) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return errors.Wrap(err, "writing csv")
		}
		return nil
	case FormatXLSX:
		return writeXLSX(w, sheet, rows)
	}
	return ErrUnknownSheetFormat
}

func writeXLSX(w io.Writer, sheet string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = defaultSheet
	} else if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return errors.Wrap(err, "naming sheet")
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrap(err, "writing xlsx row")
		}
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return errors.Wrap(err, "creating header style")
		}
		last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return errors.Wrap(err, "styling header")
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing xlsx")
	}
	return nil
}
