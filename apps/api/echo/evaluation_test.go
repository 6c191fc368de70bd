package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/student"
)

// gradedTest is a test of 10 marks (5 to pass) with one question, three students and
// the answer sheets of the first two.
type gradedTest struct {
	exam.Test
	amani, baraka, chausiku student.Student
	amaniSheet, barakaSheet paper.Paper
}

func newGradedTest(t *testing.T, f *fixture) gradedTest {
	t.Helper()
	cls := f.CreateClass(t, "Form One", "A")
	bio := f.CreateSubject(t, "Biology", "BIO", cls.ID)

	rec := f.do(http.MethodPost, "/v1/tests", f.teacherToken, marshalObj(t, exam.NewTest{
		Name: "Midterm", ClassID: cls.ID, SubjectID: bio.ID, TestDate: "2024-03-04", TotalMarks: 10, PassingMarks: 5,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var gt gradedTest
	decode(t, rec, &gt.Test)
	f.CreateQuestion(t, gt.ID, "Describe the cell membrane.", 10)

	gt.amani = f.CreateStudent(t, cls.ID, "Amani", "R-001")
	gt.baraka = f.CreateStudent(t, cls.ID, "Baraka", "R-002")
	gt.chausiku = f.CreateStudent(t, cls.ID, "Chausiku", "R-003")
	gt.amaniSheet = f.UploadSheet(t, gt.ID, gt.amani.ID, "amani.pdf")
	gt.barakaSheet = f.UploadSheet(t, gt.ID, gt.baraka.ID, "baraka.pdf")
	return gt
}

func outcome(score float64) string {
	return fmt.Sprintf(
		`{"score": %[1]g, "feedback": "Keep it up.", "results": [{"question_number": 1, "awarded": %[1]g, "max": 10, "comment": "ok"}]}`,
		score,
	)
}

func (f *fixture) processDue(t *testing.T) int {
	t.Helper()
	n, err := f.Evaluation.ProcessDue(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) evaluationOf(t *testing.T, id string) evaluation.Evaluation {
	t.Helper()
	ev, err := f.Evaluation.Get(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func (f *fixture) doneMails() int {
	var n int
	for _, msg := range f.Mail.Sent() {
		if strings.Contains(msg.Subject, "Evaluation of Midterm is done") {
			n++
		}
	}
	return n
}

func Test_evaluationApi_start(t *testing.T) {
	f := newFixture(t)
	gt := newGradedTest(t, f)
	stray := f.UploadSheet(t, gt.ID, "", "stray.pdf")
	path := "/v1/tests/" + gt.ID + "/evaluations"

	tests := []httpTest{
		{
			name: "unknown paper", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, echoapi.StartEvaluationRequest{PaperIDs: []string{"nope"}}),
			wantData: marshalObj(t, map[string]string{"paper_ids": "answer sheet nope not found in this test"}),
		},
		{
			name: "unassigned paper", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, echoapi.StartEvaluationRequest{PaperIDs: []string{stray.ID}}),
			wantData: marshalObj(t, httpErr{Error: "stray.pdf: " + evaluation.ErrPaperNotAssigned.Error()}),
		},
		{name: "queued", body: []byte(`{}`), wantCode: http.StatusAccepted, extra: 2},
		{name: "already queued", body: []byte(`{}`), wantCode: http.StatusAccepted, extra: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, path, f.teacherToken, tt.body)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusAccepted {
				var evs []evaluation.Evaluation
				decode(t, rec, &evs)
				assert.Len(t, evs, tt.extra.(int))
				for _, ev := range evs {
					assert.Equal(t, evaluation.StatusPending, ev.Status)
					assert.Equal(t, 10.0, ev.TotalMarks)
					assert.Equal(t, f.Conf.Evaluation.MaxAttempts, ev.MaxAttempts)
					assert.False(t, ev.Score.Valid)
				}
			}
		})
	}

	t.Run("no assigned sheets", func(t *testing.T) {
		cls := f.CreateClass(t, "Form Two", "A")
		sbj := f.CreateSubject(t, "Physics", "PHY", cls.ID)
		empty := f.CreateTest(t, "Quiz", cls.ID, sbj.ID, 10, 5)
		f.UploadSheet(t, empty.ID, "", "lost.pdf")

		rec := f.do(http.MethodPost, "/v1/tests/"+empty.ID+"/evaluations", f.teacherToken, []byte(`{}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: evaluation.ErrNoAnswerSheets.Error()}),
		}, rec)
	})

	t.Run("unknown test", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/tests/nope/evaluations", f.teacherToken, []byte(`{}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: exam.ErrNotFound.Error()}),
		}, rec)
	})
}

func Test_evaluationApi_workflow(t *testing.T) {
	f := newFixture(t)
	gt := newGradedTest(t, f)
	ctx := context.Background()

	evs, err := f.Evaluation.Start(ctx, gt.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	byStudent := make(map[string]evaluation.Evaluation, 2)
	for _, ev := range evs {
		byStudent[ev.StudentID] = ev
	}
	amaniEv, barakaEv := byStudent[gt.amani.ID], byStudent[gt.baraka.ID]

	progress := func(t *testing.T) evaluation.Progress {
		t.Helper()
		rec := f.do(http.MethodGet, "/v1/tests/"+gt.ID+"/evaluations/progress", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p evaluation.Progress
		decode(t, rec, &p)
		return p
	}

	t.Run("queued", func(t *testing.T) {
		assert.Equal(t, evaluation.Progress{Total: 2, Pending: 2}, progress(t))
	})

	t.Run("cancel", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/evaluations/"+barakaEv.ID+"/cancel", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ev evaluation.Evaluation
		decode(t, rec, &ev)
		assert.Equal(t, evaluation.StatusFailed, ev.Status)
		assert.Equal(t, "cancelled", ev.LastError)

		rec = f.do(http.MethodPost, "/v1/evaluations/"+barakaEv.ID+"/cancel", f.teacherToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: evaluation.ErrNotCancellable.Error()}),
		}, rec)
		assert.Zero(t, f.doneMails(), "amani is still pending")
	})

	t.Run("completed", func(t *testing.T) {
		f.AI.Reply(outcome(8))
		assert.Equal(t, 1, f.processDue(t))

		ev := f.evaluationOf(t, amaniEv.ID)
		assert.Equal(t, evaluation.StatusCompleted, ev.Status)
		assert.Equal(t, 8.0, ev.Score.Float64)
		assert.Equal(t, 1, ev.Attempts)
		assert.Equal(t, "Keep it up.", ev.Feedback)
		assert.Equal(t, evaluation.Results{{QuestionNumber: 1, Awarded: 8, Max: 10, Comment: "ok"}}, ev.Results)
		assert.True(t, ev.CompletedAt.Valid)

		reqs := f.AI.Requests()
		require.NotEmpty(t, reqs)
		assert.Contains(t, reqs[len(reqs)-1].Prompt, "Describe the cell membrane.")

		assert.Equal(t, evaluation.Progress{Total: 2, Completed: 1, Failed: 1, PercentDone: 100}, progress(t))
		assert.Equal(t, 1, f.doneMails())
		assert.Equal(t, f.teacher.Email, f.Mail.Sent()[0].To[0].Address)
	})

	t.Run("not retryable", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/evaluations/"+amaniEv.ID+"/retry", f.teacherToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: evaluation.ErrNotRetryable.Error()}),
		}, rec)
	})

	t.Run("retry", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/evaluations/"+barakaEv.ID+"/retry", f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ev evaluation.Evaluation
		decode(t, rec, &ev)
		assert.Equal(t, evaluation.StatusPending, ev.Status)
		assert.Zero(t, ev.Attempts)
		assert.Empty(t, ev.LastError)
	})

	t.Run("failed attempt is retried later", func(t *testing.T) {
		f.AI.Fail(errors.New("model overloaded"))
		assert.Equal(t, 1, f.processDue(t))

		ev := f.evaluationOf(t, barakaEv.ID)
		assert.Equal(t, evaluation.StatusPending, ev.Status)
		assert.Equal(t, 1, ev.Attempts)
		assert.Contains(t, ev.LastError, "model overloaded")
		assert.True(t, f.Clock.Now().Add(f.Conf.Evaluation.RetryBackoff).Equal(ev.NextAttemptAt))

		assert.Zero(t, f.processDue(t), "not due yet")
	})

	t.Run("completed after backoff", func(t *testing.T) {
		f.Clock.Advance(f.Conf.Evaluation.RetryBackoff)
		f.AI.Reply(outcome(14)) // clamped to the total marks
		assert.Equal(t, 1, f.processDue(t))

		ev := f.evaluationOf(t, barakaEv.ID)
		assert.Equal(t, evaluation.StatusCompleted, ev.Status)
		assert.Equal(t, 10.0, ev.Score.Float64)
		assert.Equal(t, 2, ev.Attempts)
		assert.Equal(t, 2, f.doneMails(), "notified again after the retry")
	})

	t.Run("retrieve", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/evaluations/"+amaniEv.ID, f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var ev evaluation.Evaluation
		decode(t, rec, &ev)
		assert.Equal(t, gt.amaniSheet.ID, ev.PaperID)

		rec = f.do(http.MethodGet, "/v1/evaluations/nope", f.teacherToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: evaluation.ErrNotFound.Error()}),
		}, rec)
	})
}

func Test_evaluationApi_list(t *testing.T) {
	f := newFixture(t)
	gt := newGradedTest(t, f)
	ctx := context.Background()

	evs, err := f.Evaluation.Start(ctx, gt.ID)
	require.NoError(t, err)
	for _, ev := range evs {
		if ev.StudentID == gt.baraka.ID {
			_, err = f.Evaluation.Cancel(ctx, ev.ID)
			require.NoError(t, err)
		}
	}

	path := "/v1/tests/" + gt.ID + "/evaluations"
	tests := []httpTest{
		{name: "all", path: path, wantCode: http.StatusOK, extra: 2},
		{name: "by status", path: path + "?status=failed", wantCode: http.StatusOK, extra: 1},
		{name: "by statuses", path: path + "?status=failed&status=pending", wantCode: http.StatusOK, extra: 2},
		{name: "by student", path: path + "?student_id=" + gt.amani.ID, wantCode: http.StatusOK, extra: 1},
		{name: "nothing", path: path + "?student_id=" + gt.chausiku.ID, wantCode: http.StatusOK, extra: 0},
		{name: "invalid status", path: path + "?status=lol", wantCode: http.StatusBadRequest},
		{
			name: "unknown test", path: "/v1/tests/nope/evaluations", wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: exam.ErrNotFound.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.path, f.teacherToken)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var got []evaluation.Evaluation
				decode(t, rec, &got)
				assert.Len(t, got, tt.extra.(int))
			}
		})
	}
}

func Test_evaluationApi_exhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	gt := newGradedTest(t, f)

	evs, err := f.Evaluation.Start(context.Background(), gt.ID, gt.amaniSheet.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	f.AI.Reply("I cannot read this handwriting.")
	for i := 0; i < f.Conf.Evaluation.MaxAttempts; i++ {
		assert.Equal(t, 1, f.processDue(t), "attempt %d", i+1)
		f.Clock.Advance(time.Duration(i+1) * f.Conf.Evaluation.RetryBackoff)
	}

	ev := f.evaluationOf(t, evs[0].ID)
	assert.Equal(t, evaluation.StatusFailed, ev.Status)
	assert.Equal(t, f.Conf.Evaluation.MaxAttempts, ev.Attempts)
	assert.NotEmpty(t, ev.LastError)
	assert.Zero(t, f.processDue(t))
}
