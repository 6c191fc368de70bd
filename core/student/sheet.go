package student

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var (
	// sheet columns, in template order
	columns    = []string{"name", "roll_number", "email", "gender", "date_of_birth", "guardian_name", "guardian_phone"}
	required   = []string{"name", "roll_number"}
	exampleRow = []string{"Jane Doe", "R-001", "jane.doe@example.com", "female", "2012-04-15", "John Doe", "+255700000000"}

	headerAliases = map[string]string{
		"student":          "name",
		"student_name":     "name",
		"full_name":        "name",
		"roll":             "roll_number",
		"roll_no":          "roll_number",
		"roll_num":         "roll_number",
		"e_mail":           "email",
		"sex":              "gender",
		"dob":              "date_of_birth",
		"birth_date":       "date_of_birth",
		"birthday":         "date_of_birth",
		"guardian":         "guardian_name",
		"parent":           "guardian_name",
		"parent_name":      "guardian_name",
		"guardian_contact": "guardian_phone",
		"parent_phone":     "guardian_phone",
		"phone":            "guardian_phone",
	}
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	ErrEmptySheet = errors.New("the file has no rows")
)

type (
	RowError struct {
		Row   int    `json:"row"` // 1-based, the header being row 1
		Field string `json:"field,omitempty"`
		Error string `json:"error"`
	}

	ImportResult struct {
		Total   int        `json:"total"`
		Created []Student  `json:"created"`
		Errors  []RowError `json:"errors"`
	}
)

func normalizeHeader(h string) string {
	h = strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(h), "_"), "_")
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

// mapHeader returns {column: index} for the known columns of header.
func mapHeader(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(columns))
	for i, h := range header {
		col := normalizeHeader(h)
		if _, dup := idx[col]; !dup {
			idx[col] = i
		}
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, core.NewValidationError(fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", ")))
	}
	return idx, nil
}

// Import creates the students listed in a CSV or XLSX sheet into the class.
// Invalid rows are reported in ImportResult.Errors; valid rows are created.
func (svc *Service) Import(ctx context.Context, classID string, format core.SheetFormat, r io.Reader) (ImportResult, error) {
	if err := svc.checkClass(ctx, classID); err != nil {
		return ImportResult{}, err
	}
	rows, err := core.ReadSheet(format, r)
	if err != nil {
		return ImportResult{}, core.NewValidationError(err)
	}
	if len(rows) == 0 {
		return ImportResult{}, core.NewValidationError(ErrEmptySheet)
	}
	idx, err := mapHeader(rows[0])
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{
		Total:   len(rows) - 1,
		Created: make([]Student, 0, len(rows)-1),
		Errors:  make([]RowError, 0),
	}
	seen := make(map[string]int, len(rows))

	for i, row := range rows[1:] {
		rowNum := i + 2
		get := func(col string) string {
			if j, ok := idx[col]; ok && j < len(row) {
				return row[j]
			}
			return ""
		}

		ns := NewStudent{
			ClassID:       classID,
			Name:          get("name"),
			RollNumber:    get("roll_number"),
			Email:         get("email"),
			Gender:        get("gender"),
			DateOfBirth:   get("date_of_birth"),
			GuardianName:  get("guardian_name"),
			GuardianPhone: get("guardian_phone"),
		}
		if err := ns.Validate(svc.validate); err != nil {
			res.Errors = append(res.Errors, svc.rowErrors(rowNum, err)...)
			continue
		}

		roll := strings.ToLower(ns.RollNumber)
		if prev, dup := seen[roll]; dup {
			res.Errors = append(res.Errors, RowError{
				Row:   rowNum,
				Field: "roll_number",
				Error: fmt.Sprintf("duplicate of row %d", prev),
			})
			continue
		}
		seen[roll] = rowNum

		std, err := svc.create(ctx, ns)
		if err != nil {
			if _, ok := errors.Cause(err).(*core.ValidationError); ok {
				res.Errors = append(res.Errors, svc.rowErrors(rowNum, err)...)
				continue
			}
			return res, errors.Wrapf(err, "creating student of row %d", rowNum)
		}
		res.Created = append(res.Created, std)
	}
	return res, nil
}

func (svc *Service) rowErrors(row int, err error) []RowError {
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		out := make([]RowError, 0, len(e))
		for _, fe := range e {
			out = append(out, RowError{Row: row, Field: fe.Field(), Error: fe.Translate(svc.translator)})
		}
		return out
	case *core.ValidationError:
		if len(e.Fields) == 0 {
			return []RowError{{Row: row, Error: e.Error()}}
		}
		out := make([]RowError, 0, len(e.Fields))
		for _, fe := range e.Fields {
			out = append(out, RowError{Row: row, Field: fe.Field, Error: fe.Error})
		}
		return out
	}
	return []RowError{{Row: row, Error: err.Error()}}
}

// Template returns an import template: the header row followed by an example row.
func Template(format core.SheetFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := core.WriteSheet(format, &buf, "Students", [][]string{columns, exampleRow}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportRoster writes the students of a class, ordered by roll number, in the import format.
func (svc *Service) ExportRoster(ctx context.Context, classID string, format core.SheetFormat, w io.Writer) error {
	if err := svc.checkClass(ctx, classID); err != nil {
		return err
	}
	students, err := svc.repo.QueryStudents(
		ctx,
		&QueryFilter{ClassID: classID},
		[]core.DBOrdering{{Field: "roll_number", Ascending: true}},
	)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	rows := make([][]string, 0, len(students)+1)
	rows = append(rows, columns)
	for _, std := range students {
		var dob string
		if std.DateOfBirth.Valid {
			dob = std.DateOfBirth.Time.Format(dateLayout)
		}
		rows = append(rows, []string{
			std.Name, std.RollNumber, std.Email.String, std.Gender, dob, std.GuardianName, std.GuardianPhone,
		})
	}
	return core.WriteSheet(format, w, "Students", rows)
}
