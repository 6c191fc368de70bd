package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

// fixture is an App with an admin and a teacher.
type fixture struct {
	*testutil.App
	admin        user.User
	teacher      user.User
	adminToken   string
	teacherToken string
}

func newFixture(t *testing.T) *fixture {
	app := testutil.NewApp(t)
	f := &fixture{App: app}
	f.admin = testutil.CreateUser(t, app.Repos.Users, "Admin", "admin", "admin@test.tz", "Adm1n@pass", []string{user.RoleAdmin}, true)
	f.teacher = testutil.CreateUser(t, app.Repos.Users, "Teacher", "teacher", "teacher@test.tz", "T3acher@pass", []string{user.RoleTeacher}, true)
	f.adminToken = app.Token(t, f.admin)
	f.teacherToken = app.Token(t, f.teacher)
	return f
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.Server.ServeHTTP(rec, req)
	return rec
}

// do sends a JSON request and returns the recorded response.
func (f *fixture) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, _ := newAuthRequest(method, path, token, body...)
	return f.serve(req)
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest uploads files ({name: content}) under field along with form values.
func newMultipartRequest(t *testing.T, path, token, field string, files map[string]string, values map[string]string) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names) // files are sent in name order
	for _, name := range names {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
