package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core/exam"
)

func Test_testApi_create(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	other := f.CreateClass(t, "Form Two", "A")
	bio := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	maths := f.CreateSubject(t, "Mathematics", "MATH", "")

	tests := []httpTest{
		{
			name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"name": "this field is required", "subject_id": "this field is required",
				"class_id": "this field is required", "total_marks": "this field is required",
			}),
		},
		{
			name: "passing above total", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, exam.NewTest{Name: "Midterm", ClassID: cls.ID, SubjectID: bio.ID, TotalMarks: 50, PassingMarks: 60}),
			wantData: marshalObj(t, map[string]string{"passing_marks": "passing_marks must be less than or equal to TotalMarks"}),
		},
		{
			name: "subject of another class", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, exam.NewTest{Name: "Midterm", ClassID: other.ID, SubjectID: bio.ID, TotalMarks: 50}),
			wantData: marshalObj(t, map[string]string{"subject_id": exam.ErrSubjectOtherClass.Error()}),
		},
		{
			name: "created", wantCode: http.StatusCreated,
			body: marshalObj(t, exam.NewTest{Name: "Midterm", ClassID: cls.ID, SubjectID: bio.ID, TestDate: "2024-03-04", TotalMarks: 50, PassingMarks: 25}),
		},
		{
			name: "shared subject", wantCode: http.StatusCreated,
			body: marshalObj(t, exam.NewTest{Name: "Quiz", ClassID: other.ID, SubjectID: maths.ID, TotalMarks: 10, Status: "Scheduled"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/tests", f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var tst exam.Test
				decode(t, rec, &tst)
				assert.Equal(t, f.teacher.ID, tst.CreatedBy.String)
				assert.Contains(t, exam.Statuses, tst.Status)
			}
		})
	}

	rec := f.do(http.MethodGet, "/v1/tests?status=scheduled", f.teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var scheduled []exam.Test
	decode(t, rec, &scheduled)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "Quiz", scheduled[0].Name)
}

func Test_testApi_detail(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	sbj := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	tst := f.CreateTest(t, "Midterm", cls.ID, sbj.ID, 50, 25)
	total := 20.0

	tests := []httpTest{
		{name: "retrieve", method: http.MethodGet, path: "/v1/tests/" + tst.ID, wantCode: http.StatusOK, wantData: marshalObj(t, tst)},
		{name: "unknown", method: http.MethodGet, path: "/v1/tests/nope", wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "test not found"})},
		{
			name: "total below passing", method: http.MethodPut, path: "/v1/tests/" + tst.ID, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, exam.UpdateTest{TotalMarks: &total}),
			wantData: marshalObj(t, map[string]string{"passing_marks": exam.ErrPassingAboveTotal.Error()}),
		},
		{
			name: "invalid status", method: http.MethodPost, path: "/v1/tests/" + tst.ID + "/status", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, echoapi.SetStatusRequest{Status: "lol"}),
			wantData: marshalObj(t, map[string]string{"status": "status must be one of [draft scheduled completed archived]"}),
		},
		{
			name: "schedule", method: http.MethodPost, path: "/v1/tests/" + tst.ID + "/status", wantCode: http.StatusOK,
			body: marshalObj(t, echoapi.SetStatusRequest{Status: exam.StatusScheduled}), extra: exam.StatusScheduled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if status, ok := tt.extra.(string); ok {
				var updated exam.Test
				decode(t, rec, &updated)
				assert.Equal(t, status, updated.Status)
				assert.Equal(t, tst.TotalMarks, updated.TotalMarks)
			}
		})
	}

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/v1/tests/"+tst.ID, f.teacherToken).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/tests/"+tst.ID, f.adminToken).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/tests/"+tst.ID, f.adminToken).Code)
}
