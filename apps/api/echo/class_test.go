package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/subject"
	"github.com/trezcool/tathmini/tests"
)

func strPtr(s string) *string { return &s }

func Test_classApi_permissions(t *testing.T) {
	f := newFixture(t)
	nobody := testutil.CreateUser(t, f.Repos.Users, "Nobody", "nobody", "nobody@test.tz", "", nil, true)

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "no role", token: f.Token(t, nobody), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"})},
		{name: "teacher", token: f.teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "admin", token: f.adminToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.do(http.MethodGet, "/v1/classes", tt.token))
		})
	}
}

func Test_classApi_create(t *testing.T) {
	f := newFixture(t)
	f.CreateClass(t, "Form One", "A")

	tests := []httpTest{
		{
			name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "duplicate", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, class.NewClass{Name: " Form One ", Section: "A", AcademicYear: "2024"}),
			wantData: marshalObj(t, map[string]string{"name": class.ErrClassExists.Error()}),
		},
		{
			name: "other section", wantCode: http.StatusCreated,
			body: marshalObj(t, class.NewClass{Name: "Form One", Grade: "1", Section: "B", AcademicYear: "2024"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/classes", f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var cls class.Class
				decode(t, rec, &cls)
				assert.NotEmpty(t, cls.ID)
				assert.Equal(t, "B", cls.Section)
			}
		})
	}
}

func Test_classApi_detail(t *testing.T) {
	f := newFixture(t)
	full := f.CreateClass(t, "Form One", "A")
	f.CreateStudent(t, full.ID, "Amani", "R-001")
	empty := f.CreateClass(t, "Form Two", "A")

	tests := []httpTest{
		{name: "retrieve", method: http.MethodGet, path: "/v1/classes/" + full.ID, token: f.teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, full)},
		{name: "unknown", method: http.MethodGet, path: "/v1/classes/" + uuid.NewString(), token: f.teacherToken, wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "class not found"})},
		{
			name: "rename", method: http.MethodPut, path: "/v1/classes/" + empty.ID, token: f.teacherToken, wantCode: http.StatusOK,
			body: marshalObj(t, class.UpdateClass{Name: strPtr(" Form Three ")}), extra: "Form Three",
		},
		{
			name: "rename to a taken name", method: http.MethodPut, path: "/v1/classes/" + empty.ID, token: f.teacherToken, wantCode: http.StatusBadRequest,
			body: marshalObj(t, class.UpdateClass{Name: strPtr("Form One")}), wantData: marshalObj(t, map[string]string{"name": class.ErrClassExists.Error()}),
		},
		{name: "teachers cannot delete", method: http.MethodDelete, path: "/v1/classes/" + empty.ID, token: f.teacherToken, wantCode: http.StatusForbidden},
		{
			name: "class with students", method: http.MethodDelete, path: "/v1/classes/" + full.ID, token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: class.ErrHasStudents.Error()}),
		},
		{name: "empty class", method: http.MethodDelete, path: "/v1/classes/" + empty.ID, token: f.adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)

			if name, ok := tt.extra.(string); ok {
				var cls class.Class
				decode(t, rec, &cls)
				assert.Equal(t, name, cls.Name)
				assert.Equal(t, "A", cls.Section)
			}
		})
	}

	_, err := f.Classes.Get(context.Background(), empty.ID)
	assert.Error(t, err)
}

func Test_classApi_deleteWithTests(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	sbj := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	f.CreateTest(t, "Midterm", cls.ID, sbj.ID, 50, 25)

	rec := f.do(http.MethodDelete, "/v1/classes/"+cls.ID, f.adminToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: class.ErrHasResources.Error()})}, rec)
}

func Test_subjectApi(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	f.CreateSubject(t, "Biology", "BIO", cls.ID)

	tests := []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/subjects", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"name": "this field is required", "code": "this field is required"}),
		},
		{
			name: "unknown class", method: http.MethodPost, path: "/v1/subjects", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, subject.NewSubject{ClassID: uuid.NewString(), Name: "Chemistry", Code: "CHE"}),
			wantData: marshalObj(t, map[string]string{"class_id": "class not found"}),
		},
		{
			name: "code taken", method: http.MethodPost, path: "/v1/subjects", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, subject.NewSubject{Name: "Biology II", Code: "bio"}),
			wantData: marshalObj(t, map[string]string{"code": subject.ErrCodeExists.Error()}),
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/subjects", wantCode: http.StatusCreated,
			body: marshalObj(t, subject.NewSubject{ClassID: cls.ID, Name: "Chemistry", Code: " che_1 "}), extra: "CHE_1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if code, ok := tt.extra.(string); ok {
				var sbj subject.Subject
				decode(t, rec, &sbj)
				assert.Equal(t, code, sbj.Code)
				assert.Equal(t, cls.ID, sbj.ClassID.String)
			}
		})
	}

	t.Run("query", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/subjects?search=chem", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var subjects []subject.Subject
		decode(t, rec, &subjects)
		require.Len(t, subjects, 1)
		assert.Equal(t, "Chemistry", subjects[0].Name)
	})
}
