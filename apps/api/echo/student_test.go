package echoapi_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/report"
	"github.com/trezcool/tathmini/core/student"
)

const rosterCSV = `Name,Roll No,E-mail,Sex,DOB
Amani,R-001,amani@test.tz,Male,2010-01-31
Baraka,R-002,bad-email,male,
Chausiku,r-001,,female,
,R-003,,,
`

func Test_studentApi_crud(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	std := f.CreateStudent(t, cls.ID, "Amani", "R-001")

	t.Run("create", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
				wantData: marshalObj(t, map[string]string{"class_id": "this field is required", "name": "this field is required", "roll_number": "this field is required"}),
			},
			{
				name: "roll number taken", wantCode: http.StatusBadRequest,
				body:     marshalObj(t, student.NewStudent{ClassID: cls.ID, Name: "Baraka", RollNumber: "R-001"}),
				wantData: marshalObj(t, map[string]string{"roll_number": student.ErrRollNumberExists.Error()}),
			},
			{
				name: "unknown class", wantCode: http.StatusBadRequest,
				body:     marshalObj(t, student.NewStudent{ClassID: "nope", Name: "Baraka", RollNumber: "R-002"}),
				wantData: marshalObj(t, map[string]string{"class_id": "class not found"}),
			},
			{
				name: "created", wantCode: http.StatusCreated,
				body: marshalObj(t, student.NewStudent{ClassID: cls.ID, Name: "Baraka", RollNumber: "R-002", Gender: "Male", DateOfBirth: "2010-05-01"}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := f.do(http.MethodPost, "/v1/students", f.teacherToken, tt.body)
				checkCodeAndData(t, tt, rec)
				if tt.wantCode == http.StatusCreated {
					var created student.Student
					decode(t, rec, &created)
					assert.Equal(t, "male", created.Gender)
					assert.True(t, created.DateOfBirth.Valid)
					assert.True(t, created.IsActive)
				}
			})
		}
	})

	t.Run("query", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/students?class_id="+cls.ID+"&search=r-00", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var students []student.Student
		decode(t, rec, &students)
		require.Len(t, students, 2)
		assert.Equal(t, "Amani", students[0].Name)
		assert.Equal(t, "Baraka", students[1].Name)
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(http.MethodPut, "/v1/students/"+std.ID, f.teacherToken, marshalObj(t, student.UpdateStudent{GuardianName: strPtr("Mama Amani")}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated student.Student
		decode(t, rec, &updated)
		assert.Equal(t, "Mama Amani", updated.GuardianName)
		assert.Equal(t, "R-001", updated.RollNumber)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/students/"+std.ID, f.teacherToken).Code)
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/students/"+std.ID, f.adminToken).Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/students/"+std.ID, f.adminToken).Code)
	})
}

func Test_studentApi_template(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		query  string
		code   int
		format core.SheetFormat
	}{
		{name: "csv by default", code: http.StatusOK, format: core.FormatCSV},
		{name: "xlsx", query: "?format=xlsx", code: http.StatusOK, format: core.FormatXLSX},
		{name: "unknown format", query: "?format=pdf", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/v1/students/template"+tt.query, f.teacherToken)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			assert.Equal(t, tt.format.ContentType(), rec.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="students-template.`+string(tt.format)+`"`, rec.Header().Get("Content-Disposition"))

			rows, err := core.ReadSheet(tt.format, bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "roll_number", rows[0][1])
		})
	}
}

func Test_studentApi_import(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")

	wantErrors := []student.RowError{
		{Row: 3, Field: "email", Error: "email must be a valid email address"},
		{Row: 4, Field: "roll_number", Error: "duplicate of row 2"},
		{Row: 5, Field: "name", Error: "this field is required"},
	}

	check := func(t *testing.T, req *http.Request) {
		rec := f.serve(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res student.ImportResult
		decode(t, rec, &res)
		assert.Equal(t, 4, res.Total)
		require.Len(t, res.Created, 1)
		assert.Equal(t, "Amani", res.Created[0].Name)
		assert.Equal(t, "male", res.Created[0].Gender)
		assert.Equal(t, wantErrors, res.Errors)
	}

	t.Run("class roster", func(t *testing.T) {
		check(t, newMultipartRequest(t, "/v1/classes/"+cls.ID+"/students/import", f.teacherToken, "file", map[string]string{"roster.csv": rosterCSV}, nil))
	})

	t.Run("upload endpoint", func(t *testing.T) {
		other := f.CreateClass(t, "Form Two", "A")
		check(t, newMultipartRequest(t, "/v1/uploads/studentImport", f.teacherToken, "files", map[string]string{"roster.csv": rosterCSV}, map[string]string{"class_id": other.ID}))
	})

	t.Run("already imported", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/v1/classes/"+cls.ID+"/students/import", f.teacherToken, "file", map[string]string{"roster.csv": rosterCSV}, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var res student.ImportResult
		decode(t, rec, &res)
		assert.Empty(t, res.Created)
		assert.Equal(t, student.RowError{Row: 2, Field: "roll_number", Error: student.ErrRollNumberExists.Error()}, res.Errors[0])
	})

	t.Run("missing columns", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/v1/classes/"+cls.ID+"/students/import", f.teacherToken, "file", map[string]string{"roster.csv": "Name,Email\nAmani,a@test.tz\n"}, nil))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "missing required column(s): roll_number"})}, rec)
	})

	t.Run("wrong file type", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/v1/classes/"+cls.ID+"/students/import", f.teacherToken, "file", map[string]string{"roster.pdf": "%PDF"}, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"files"`)
	})

	t.Run("no file", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/v1/classes/"+cls.ID+"/students/import", f.teacherToken, "file", nil, map[string]string{"lol": "lol"}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"file": "a csv or xlsx file is required"})}, rec)
	})
}

func Test_studentApi_export(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	f.CreateStudent(t, cls.ID, "Ann", "R-002")
	f.CreateStudent(t, cls.ID, "Zed", "R-001")

	rec := f.do(http.MethodGet, "/v1/classes/"+cls.ID+"/students/export?format=xlsx", f.teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="form-one-students.xlsx"`, rec.Header().Get("Content-Disposition"))

	rows, err := core.ReadSheet(core.FormatXLSX, bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Zed", "R-001"}, rows[1][:2])
	assert.Equal(t, []string{"Ann", "R-002"}, rows[2][:2])

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/classes/nope/students/export", f.teacherToken).Code)
}

// sheetsByID lists the answer sheets of a test through the paper service (and its cache).
func (f *fixture) sheetsByID(t *testing.T, testID string) map[string]paper.Paper {
	t.Helper()
	sheets, err := f.Papers.ListForTest(context.Background(), testID, paper.KindAnswerSheet)
	require.NoError(t, err)
	out := make(map[string]paper.Paper, len(sheets))
	for _, p := range sheets {
		out[p.ID] = p
	}
	return out
}

func Test_studentApi_answerSheets(t *testing.T) {
	f := newFixture(t)
	gt := newGradedTest(t, f)
	ctx := context.Background()

	// Amani is marked and the listing and summary are cached
	_, err := f.Evaluation.Start(ctx, gt.ID, gt.amaniSheet.ID)
	require.NoError(t, err)
	f.AI.Reply(outcome(8))
	require.Equal(t, 1, f.processDue(t))
	require.Len(t, f.sheetsByID(t, gt.ID), 2)
	summary, err := f.Reports.TestSummary(ctx, gt.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)

	t.Run("moved to another class", func(t *testing.T) {
		other := f.CreateClass(t, "Form Two", "A")
		rec := f.do(http.MethodPut, "/v1/students/"+gt.baraka.ID, f.teacherToken, marshalObj(t, student.UpdateStudent{ClassID: &other.ID}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		sheets := f.sheetsByID(t, gt.ID)
		assert.False(t, sheets[gt.barakaSheet.ID].IsAssigned())
		assert.True(t, sheets[gt.amaniSheet.ID].IsAssigned())

		// Amani's sheet is already evaluated and Baraka's is no longer assigned
		queued, err := f.Evaluation.Start(ctx, gt.ID)
		require.NoError(t, err)
		assert.Empty(t, queued)
	})

	t.Run("deleted", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/students/"+gt.amani.ID, f.adminToken).Code)

		sheets := f.sheetsByID(t, gt.ID)
		require.Len(t, sheets, 2)
		assert.False(t, sheets[gt.amaniSheet.ID].IsAssigned())

		summary, err := f.Reports.TestSummary(ctx, gt.ID)
		require.NoError(t, err)
		assert.Equal(t, report.Summary{
			TestID: gt.ID, TestName: "Midterm", TotalMarks: 10, PassingMarks: 5,
			Grades: map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0},
		}, summary)

		_, err = f.Evaluation.Start(ctx, gt.ID)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "unexpected error: %v", err)
		assert.Equal(t, evaluation.ErrNoAnswerSheets, verr.Err)
		evs, err := f.Evaluation.Query(ctx, evaluation.QueryFilter{TestID: gt.ID})
		require.NoError(t, err)
		assert.Empty(t, evs)
	})
}
