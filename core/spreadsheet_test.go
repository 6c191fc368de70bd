package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseSheetFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SheetFormat
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: " XLSX ", want: FormatXLSX},
		{in: "students.CSV", want: FormatCSV},
		{in: "/tmp/roster.xlsx", want: FormatXLSX},
		{in: "roster.xls", wantErr: true},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSheetFormat(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrUnknownSheetFormat, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadWriteSheet(t *testing.T) {
	rows := [][]string{
		{"roll_number", "name", "feedback"},
		{"R-001", "Amani", "Good, keep it up."},
		{"R-002", "Baraka", `Said "hello"`},
	}

	for _, format := range []SheetFormat{FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSheet(format, &buf, "Midterm", rows))

			got, err := ReadSheet(format, bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, rows, got)
		})
	}

	t.Run("xlsx sheet name", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteSheet(FormatXLSX, &buf, "Midterm", rows))
		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{"Midterm"}, f.GetSheetList())
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Equal(t, ErrUnknownSheetFormat, WriteSheet("pdf", &bytes.Buffer{}, "", rows))
		_, err := ReadSheet("pdf", strings.NewReader(""))
		assert.Equal(t, ErrUnknownSheetFormat, err)
	})
}

func TestReadSheet_cleaning(t *testing.T) {
	csv := "Name , Roll No\n\n  Amani  ,R-001\n , \nBaraka,R-002,extra\n"
	got, err := ReadSheet(FormatCSV, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", "Roll No"},
		{"Amani", "R-001"},
		{"Baraka", "R-002", "extra"},
	}, got)

	_, err = ReadSheet(FormatCSV, strings.NewReader("a,\"b\nc"))
	assert.Error(t, err)

	_, err = ReadSheet(FormatXLSX, strings.NewReader("not a workbook"))
	assert.Error(t, err)
}
