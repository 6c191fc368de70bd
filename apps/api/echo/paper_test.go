package echoapi_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core/paper"
)

// uploaded mirrors the JSON of an uploaded paper.
type uploaded struct {
	paper.Paper
	URL string `json:"url"`
}

func requestURI(t *testing.T, rawURL string) string {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.RequestURI()
}

// pngImage returns the content of a small PNG image.
func pngImage(t *testing.T) string {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.String()
}

func Test_uploadApi(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	sbj := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	tst := f.CreateTest(t, "Midterm", cls.ID, sbj.ID, 50, 25)
	amani := f.CreateStudent(t, cls.ID, "Amani", "R-001")
	outsider := f.CreateStudent(t, f.CreateClass(t, "Form Two", "A").ID, "Zuri", "R-001")

	t.Run("endpoints", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/uploads", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"answerSheet"`)
	})

	tests := []struct {
		name     string
		endpoint string
		files    map[string]string
		values   map[string]string
		code     int
		contains string
	}{
		{name: "unknown endpoint", endpoint: "lol", files: map[string]string{"a.pdf": "%PDF"}, values: map[string]string{"test_id": tst.ID}, code: http.StatusNotFound},
		{name: "no files", endpoint: "answerSheet", values: map[string]string{"test_id": tst.ID}, code: http.StatusBadRequest, contains: "no file uploaded"},
		{name: "type not allowed", endpoint: "answerSheet", files: map[string]string{"a.docx": "doc"}, values: map[string]string{"test_id": tst.ID}, code: http.StatusBadRequest, contains: "file type not allowed"},
		{name: "too many files", endpoint: "questionPaper", files: map[string]string{"a.pdf": "%PDF", "b.pdf": "%PDF"}, values: map[string]string{"test_id": tst.ID}, code: http.StatusBadRequest, contains: "too many files"},
		{name: "missing test", endpoint: "questionPaper", files: map[string]string{"a.pdf": "%PDF"}, code: http.StatusBadRequest, contains: "test_id is required"},
		{name: "unknown test", endpoint: "questionPaper", files: map[string]string{"a.pdf": "%PDF"}, values: map[string]string{"test_id": "nope"}, code: http.StatusNotFound},
		{
			name: "student of another class", endpoint: "answerSheet", files: map[string]string{"a.pdf": "%PDF"},
			values: map[string]string{"test_id": tst.ID, "student_id": outsider.ID}, code: http.StatusBadRequest, contains: paper.ErrStudentOtherClass.Error(),
		},
		{name: "question paper", endpoint: "questionPaper", files: map[string]string{"Midterm Paper.PDF": "%PDF-1.4"}, values: map[string]string{"test_id": tst.ID}, code: http.StatusCreated},
		{
			name: "answer sheets", endpoint: "answerSheet", files: map[string]string{"amani.pdf": "%PDF-1.4", "unknown.png": pngImage(t)},
			values: map[string]string{"test_id": tst.ID}, code: http.StatusCreated,
		},
		{
			name: "one unreadable file discards the batch", endpoint: "answerSheet", files: map[string]string{"a.pdf": "%PDF-1.4", "b.png": "png"},
			values: map[string]string{"test_id": tst.ID}, code: http.StatusBadRequest, contains: "b.png: unreadable image",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(newMultipartRequest(t, "/v1/uploads/"+tt.endpoint, f.teacherToken, "files", tt.files, tt.values))
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
			if tt.code != http.StatusCreated {
				return
			}

			var papers []uploaded
			decode(t, rec, &papers)
			require.Len(t, papers, len(tt.files))
			for _, p := range papers {
				assert.Equal(t, tst.ID, p.TestID)
				assert.Equal(t, f.teacher.ID, p.UploadedBy.String)
				assert.Contains(t, p.URL, "signature=")
				assert.Contains(t, p.StorageKey, "tests/"+tst.ID+"/")
			}
		})
	}

	// the listing reflects the uploads
	rec := f.do(http.MethodGet, "/v1/tests/"+tst.ID+"/papers?kind=answer_sheet", f.teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var sheets []uploaded
	decode(t, rec, &sheets)
	require.Len(t, sheets, 2)
	stored, err := f.Files.List(context.Background(), "tests/"+tst.ID+"/"+paper.KindAnswerSheet+"/")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, s := range sheets {
		if s.DocumentType == paper.DocImage {
			assert.Equal(t, "unknown.webp", s.Filename)
			assert.Equal(t, "image/webp", s.ContentType)
		}
	}

	rec = f.do(http.MethodGet, "/v1/tests/"+tst.ID+"/papers?kind=lol", f.teacherToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"kind": "must be one of: question_paper, answer_sheet, answer_key"})}, rec)

	// assign the pdf sheet
	var sheet uploaded
	for _, s := range sheets {
		if s.DocumentType == paper.DocPDF {
			sheet = s
		}
	}
	require.NotEmpty(t, sheet.ID)

	rec = f.do(http.MethodPut, "/v1/papers/"+sheet.ID+"/assign", f.teacherToken, marshalObj(t, echoapi.AssignRequest{StudentID: amani.ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assigned uploaded
	decode(t, rec, &assigned)
	assert.Equal(t, amani.ID, assigned.StudentID.String)
	assert.True(t, assigned.AssignedAt.Valid)

	rec = f.do(http.MethodPut, "/v1/papers/"+sheet.ID+"/assign", f.teacherToken, marshalObj(t, echoapi.AssignRequest{StudentID: outsider.ID}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"student_id": paper.ErrStudentOtherClass.Error()})}, rec)

	rec = f.do(http.MethodDelete, "/v1/papers/"+sheet.ID+"/assign", f.teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var unassigned uploaded
	decode(t, rec, &unassigned)
	assert.False(t, unassigned.IsAssigned())

	// download the content
	rec = f.do(http.MethodGet, "/v1/papers/"+sheet.ID+"/file", f.teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, `inline; filename="amani.pdf"`, rec.Header().Get("Content-Disposition"))

	// delete
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/papers/"+sheet.ID, f.teacherToken).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/papers/"+sheet.ID, f.teacherToken).Code)
}

func Test_fileApi(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	sbj := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	tst := f.CreateTest(t, "Midterm", cls.ID, sbj.ID, 50, 25)
	p := f.UploadSheet(t, tst.ID, "", "sheet.pdf")

	signed, err := f.Papers.URL(context.Background(), p, true)
	require.NoError(t, err)
	uri := requestURI(t, signed)

	t.Run("valid signature", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, uri)
		f.Server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Body.String())
	})

	t.Run("tampered signature", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, uri+"0")
		f.Server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := f.Papers.URL(context.Background(), p, false)
		require.NoError(t, err)
		req, rec := newRequest(http.MethodGet, requestURI(t, unsigned))
		f.Server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("public url on request", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/papers/"+p.ID+"?signed=false", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got uploaded
		decode(t, rec, &got)
		assert.Equal(t, f.Files.PublicURL(p.StorageKey), got.URL)
		assert.NotContains(t, got.URL, "signature=")

		rec = f.do(http.MethodGet, "/v1/tests/"+tst.ID+"/papers?signed=false", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var listed []uploaded
		decode(t, rec, &listed)
		require.Len(t, listed, 1)
		assert.Equal(t, got.URL, listed[0].URL)

		rec = f.do(http.MethodGet, "/v1/papers/"+p.ID+"?signed=lol", f.teacherToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"signed": "must be true or false"})}, rec)
	})

	t.Run("expired", func(t *testing.T) {
		f.Clock.Advance(f.Conf.Storage.SignedURLTTL + 2*time.Second)
		req, rec := newRequest(http.MethodGet, uri)
		f.Server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
