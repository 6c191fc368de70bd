package echoapi_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/question"
	aisvc "github.com/trezcool/tathmini/services/ai"
)

const generatedQuestions = "```json\n" + `{"questions": [
	{"text": "What is the powerhouse of the cell?", "type": "Multiple Choice", "options": ["Nucleus", "Mitochondria"], "answer": "Mitochondria", "marks": 2, "topic": "Cells"},
	{"question": "Plants respire at night.", "type": "true/false", "answer": true},
	{"text": "Broken", "type": "mcq", "options": ["only one"], "marks": 1},
	{"text": "Explain osmosis.", "type": "essay", "marks": 5, "difficulty": "hard"}
]}` + "\n```"

func Test_questionApi(t *testing.T) {
	f := newFixture(t)
	cls := f.CreateClass(t, "Form One", "A")
	sbj := f.CreateSubject(t, "Biology", "BIO", cls.ID)
	tst := f.CreateTest(t, "Midterm", cls.ID, sbj.ID, 50, 25)
	first := f.CreateQuestion(t, tst.ID, "Name the parts of a cell.", 4)
	testPath := "/v1/tests/" + tst.ID + "/questions"

	tests := []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: testPath, body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"text": "this field is required", "type": "this field is required", "marks": "marks must be greater than 0"}),
		},
		{
			name: "mcq without options", method: http.MethodPost, path: testPath, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, question.NewQuestion{Text: "Pick one", Type: "mcq", Options: []string{"A"}, Marks: 1}),
			wantData: marshalObj(t, map[string]string{"options": "multiple choice questions need at least 2 options"}),
		},
		{
			name: "mcq answer not an option", method: http.MethodPost, path: testPath, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, question.NewQuestion{Text: "Pick one", Type: "mcq", Options: []string{"A", "B"}, Answer: "C", Marks: 1}),
			wantData: marshalObj(t, map[string]string{"answer": "the answer must be one of the options"}),
		},
		{
			name: "number taken", method: http.MethodPost, path: testPath, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, question.NewQuestion{Number: first.Number, Text: "Again", Type: "short", Marks: 1}),
			wantData: marshalObj(t, map[string]string{"number": question.ErrNumberExists.Error()}),
		},
		{
			name: "unknown test", method: http.MethodPost, path: "/v1/tests/nope/questions", wantCode: http.StatusNotFound,
			body: marshalObj(t, question.NewQuestion{Text: "Lost", Type: "short", Marks: 1}),
		},
		{
			name: "appended", method: http.MethodPost, path: testPath, wantCode: http.StatusCreated,
			body: marshalObj(t, question.NewQuestion{Text: " Pick one ", Type: "Multiple Choice", Options: []string{"A", " B ", ""}, Answer: "B", Marks: 1}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var q question.Question
				decode(t, rec, &q)
				assert.Equal(t, 2, q.Number)
				assert.Equal(t, question.TypeMCQ, q.Type)
				assert.Equal(t, []string{"A", "B"}, q.Options)
				assert.Equal(t, question.SourceManual, q.Source)
				assert.Equal(t, question.DifficultyMedium, q.Difficulty)
			}
		})
	}

	t.Run("update", func(t *testing.T) {
		taken := 2
		rec := f.do(http.MethodPut, "/v1/questions/"+first.ID, f.teacherToken, marshalObj(t, question.UpdateQuestion{Number: &taken}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"number": question.ErrNumberExists.Error()})}, rec)

		typ := "true_false"
		answer := "TRUE"
		rec = f.do(http.MethodPut, "/v1/questions/"+first.ID, f.teacherToken, marshalObj(t, question.UpdateQuestion{Type: &typ, Answer: &answer}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var q question.Question
		decode(t, rec, &q)
		assert.Equal(t, question.TypeTrueFalse, q.Type)
		assert.Equal(t, "true", q.Answer)
		assert.Equal(t, first.Number, q.Number)
	})

	t.Run("generate", func(t *testing.T) {
		rec := f.do(http.MethodPost, testPath+"/generate", f.teacherToken, []byte(`{"count": 0}`))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"count": "this field is required"})}, rec)

		f.AI.Reply(generatedQuestions)
		rec = f.do(http.MethodPost, testPath+"/generate", f.teacherToken, marshalObj(t, question.GenerateRequest{Count: 2, Topic: "Cells"}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var generated []question.Question
		decode(t, rec, &generated)
		require.Len(t, generated, 2)
		assert.Equal(t, 3, generated[0].Number)
		assert.Equal(t, question.TypeMCQ, generated[0].Type)
		assert.Equal(t, "Mitochondria", generated[0].Answer)
		assert.Equal(t, 4, generated[1].Number)
		assert.Equal(t, question.TypeTrueFalse, generated[1].Type)
		assert.Equal(t, "true", generated[1].Answer)
		assert.Equal(t, 1.0, generated[1].Marks)
		assert.Equal(t, "Cells", generated[1].Topic)
		for _, q := range generated {
			assert.Equal(t, question.SourceAI, q.Source)
		}

		reqs := f.AI.Requests()
		require.NotEmpty(t, reqs)
		last := reqs[len(reqs)-1]
		assert.True(t, last.JSON)
		assert.True(t, strings.Contains(last.Prompt, "Midterm"))
	})

	t.Run("generate: nothing usable", func(t *testing.T) {
		f.AI.Reply(`{"questions": [{"text": "", "type": "short"}]}`)
		rec := f.do(http.MethodPost, testPath+"/generate", f.teacherToken, marshalObj(t, question.GenerateRequest{Count: 1}))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadGateway, wantData: marshalObj(t, httpErr{Error: question.ErrNothingGenerated.Error()})}, rec)
	})

	t.Run("generate: AI not configured", func(t *testing.T) {
		f.AI.Fail(aisvc.ErrNotConfigured)
		rec := f.do(http.MethodPost, testPath+"/generate", f.teacherToken, marshalObj(t, question.GenerateRequest{Count: 1}))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("list & delete", func(t *testing.T) {
		rec := f.do(http.MethodGet, testPath, f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var questions []question.Question
		decode(t, rec, &questions)
		require.Len(t, questions, 4)
		for i, q := range questions {
			assert.Equal(t, i+1, q.Number)
		}

		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/questions/"+first.ID, f.teacherToken).Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/questions/"+first.ID, f.teacherToken).Code)
	})
}
