package student

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Name":            "name",
		"Student Name":    "name",
		" Roll No. ":      "roll_number",
		"ROLL_NUMBER":     "roll_number",
		"E-mail":          "email",
		"Sex":             "gender",
		"D.O.B":           "d_o_b",
		"DOB":             "date_of_birth",
		"Parent's Phone":  "parent_s_phone",
		"Guardian Phone":  "guardian_phone",
		"Favourite Color": "favourite_color",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeHeader(in), in)
	}
}

func TestMapHeader(t *testing.T) {
	idx, err := mapHeader([]string{"Full Name", "Roll", "Notes", "Email", "Name"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx["name"], "the first matching column wins")
	assert.Equal(t, 1, idx["roll_number"])
	assert.Equal(t, 3, idx["email"])

	_, err = mapHeader([]string{"Email", "Sex"})
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "unexpected error: %v", err)
	assert.Equal(t, "missing required column(s): name, roll_number", verr.Error())
}

func TestTemplate(t *testing.T) {
	for _, format := range []core.SheetFormat{core.FormatCSV, core.FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Template(format)
			require.NoError(t, err)

			rows, err := core.ReadSheet(format, bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, [][]string{columns, exampleRow}, rows)

			idx, err := mapHeader(rows[0])
			require.NoError(t, err)
			assert.Len(t, idx, len(columns))
		})
	}
}

func TestFilter(t *testing.T) {
	active, inactive := true, false
	list := []Student{
		{ID: "1", ClassID: "c1", Name: "Amani Juma", RollNumber: "R-001", Email: null.StringFrom("amani@test.tz"), IsActive: true},
		{ID: "2", ClassID: "c1", Name: "Baraka Ali", RollNumber: "R-002", IsActive: false},
		{ID: "3", ClassID: "c2", Name: "Chausiku", RollNumber: "X-101", Email: null.StringFrom("chausiku@school.tz"), IsActive: true},
	}
	ids := func(stds []Student) []string {
		out := make([]string, 0, len(stds))
		for _, s := range stds {
			out = append(out, s.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter QueryFilter
		want   []string
	}{
		{name: "empty", want: []string{"1", "2", "3"}},
		{name: "class", filter: QueryFilter{ClassID: "c1"}, want: []string{"1", "2"}},
		{name: "active", filter: QueryFilter{IsActive: &active}, want: []string{"1", "3"}},
		{name: "inactive of class", filter: QueryFilter{ClassID: "c1", IsActive: &inactive}, want: []string{"2"}},
		{name: "search name", filter: QueryFilter{Search: " JUMA "}, want: []string{"1"}},
		{name: "search roll number", filter: QueryFilter{Search: "r-00"}, want: []string{"1", "2"}},
		{name: "search email", filter: QueryFilter{Search: "school.tz"}, want: []string{"3"}},
		{name: "no match", filter: QueryFilter{Search: "zawadi"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(list, tt.filter)))
		})
	}
	assert.Len(t, list, 3)
}

func TestParseDate(t *testing.T) {
	assert.False(t, parseDate("").Valid)
	assert.False(t, parseDate("15/04/2012").Valid)
	d := parseDate("2012-04-15")
	require.True(t, d.Valid)
	assert.Equal(t, "2012-04-15", d.Time.Format(dateLayout))
}
