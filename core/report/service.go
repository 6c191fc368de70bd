package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/student"
)

const (
	notEvaluated = "not evaluated"

	studentReportSystemPrompt = "You are a supportive teacher writing a short progress report for a student and their guardian. " +
		"Be specific, encouraging and honest. Use plain text, no markdown."
)

var ErrNoResults = errors.New("the student has no completed evaluation yet")

type (
	EvaluationQuerier interface {
		Query(ctx context.Context, filter evaluation.QueryFilter) ([]evaluation.Evaluation, error)
	}

	TestGetter interface {
		Get(ctx context.Context, id string) (exam.Test, error)
	}

	StudentSource interface {
		Get(ctx context.Context, id string) (student.Student, error)
		Query(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error)
	}

	Service struct {
		evaluations EvaluationQuerier
		tests       TestGetter
		students    StudentSource
		cache       core.Cache
		ai          core.ChatCompleter
		conf        *core.Config
		logger      core.Logger
	}

	StudentTestResult struct {
		TestID     string  `json:"test_id"`
		TestName   string  `json:"test_name"`
		Score      float64 `json:"score"`
		TotalMarks float64 `json:"total_marks"`
		Percent    float64 `json:"percent"`
		Grade      string  `json:"grade"`
		Feedback   string  `json:"feedback"`
	}

	StudentReport struct {
		StudentID string              `json:"student_id"`
		Name      string              `json:"name"`
		Results   []StudentTestResult `json:"results"`
		Narrative string              `json:"narrative"`
	}
)

func NewService(
	conf *core.Config,
	evaluations EvaluationQuerier,
	tests TestGetter,
	students StudentSource,
	cache core.Cache,
	ai core.ChatCompleter,
	logger core.Logger,
) *Service {
	return &Service{
		evaluations: evaluations,
		tests:       tests,
		students:    students,
		cache:       cache,
		ai:          ai,
		conf:        conf,
		logger:      logger,
	}
}

// latestCompleted keeps the most recently completed evaluation of each student.
func latestCompleted(evs []evaluation.Evaluation) map[string]evaluation.Evaluation {
	out := make(map[string]evaluation.Evaluation, len(evs))
	for _, ev := range evs {
		if ev.Status != evaluation.StatusCompleted || !ev.Score.Valid {
			continue
		}
		if prev, ok := out[ev.StudentID]; ok && prev.CompletedAt.Time.After(ev.CompletedAt.Time) {
			continue
		}
		out[ev.StudentID] = ev
	}
	return out
}

// TestSummary returns the statistics of the completed evaluations of a test.
func (svc *Service) TestSummary(ctx context.Context, testID string) (Summary, error) {
	tst, err := svc.tests.Get(ctx, testID)
	if err != nil {
		return Summary{}, err
	}

	key := core.ReportCacheKey(testID)
	var summary Summary
	if found, err := svc.cache.Get(ctx, key, &summary); err != nil {
		svc.logger.Warn(fmt.Sprintf("reading report cache %s: %v", key, err), err)
	} else if found {
		return summary, nil
	}

	evs, err := svc.evaluations.Query(ctx, evaluation.QueryFilter{TestID: testID, Status: []string{evaluation.StatusCompleted}})
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying evaluations")
	}
	latest := latestCompleted(evs)
	scores := make([]float64, 0, len(latest))
	for _, ev := range latest {
		scores = append(scores, ev.Score.Float64)
	}

	summary = Summarize(scores, tst.TotalMarks, tst.PassingMarks)
	summary.TestID = tst.ID
	summary.TestName = tst.Name
	if err := svc.cache.Set(ctx, key, summary, svc.conf.Redis.TTL); err != nil {
		svc.logger.Warn(fmt.Sprintf("writing report cache %s: %v", key, err), err)
	}
	return summary, nil
}

// Results lists every student of the test's class with their latest evaluation, by roll number.
func (svc *Service) Results(ctx context.Context, testID string) (exam.Test, []Row, error) {
	tst, err := svc.tests.Get(ctx, testID)
	if err != nil {
		return exam.Test{}, nil, err
	}
	students, err := svc.students.Query(
		ctx,
		&student.QueryFilter{ClassID: tst.ClassID},
		[]core.DBOrdering{{Field: "roll_number", Ascending: true}},
	)
	if err != nil {
		return exam.Test{}, nil, errors.Wrap(err, "querying students")
	}
	evs, err := svc.evaluations.Query(ctx, evaluation.QueryFilter{TestID: testID})
	if err != nil {
		return exam.Test{}, nil, errors.Wrap(err, "querying evaluations")
	}
	completed := latestCompleted(evs)
	statuses := make(map[string]string, len(evs))
	for _, ev := range evs { // ordered by creation: the latest status wins
		statuses[ev.StudentID] = ev.Status
	}

	rows := make([]Row, 0, len(students))
	for _, std := range students {
		row := Row{
			StudentID:  std.ID,
			RollNumber: std.RollNumber,
			Name:       std.Name,
			Status:     notEvaluated,
			TotalMarks: tst.TotalMarks,
		}
		if status, ok := statuses[std.ID]; ok {
			row.Status = status
		}
		if ev, ok := completed[std.ID]; ok {
			score := ev.Score.Float64
			row.Status = evaluation.StatusCompleted
			row.Score = &score
			row.Percent = round2(ev.Percent())
			row.Grade = Grade(row.Percent)
			row.Passed = score >= tst.PassingMarks
			row.Feedback = ev.Feedback
		}
		rows = append(rows, row)
	}
	return tst, rows, nil
}

var exportHeader = []string{"roll_number", "name", "status", "score", "total_marks", "percent", "grade", "result", "feedback"}

// Export writes the results of a test as CSV or XLSX.
func (svc *Service) Export(ctx context.Context, testID string, format core.SheetFormat, w io.Writer) error {
	tst, rows, err := svc.Results(ctx, testID)
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(rows)+1)
	out = append(out, exportHeader)
	for _, row := range rows {
		var score, percent, result string
		if row.Score != nil {
			score = strconv.FormatFloat(*row.Score, 'f', -1, 64)
			percent = strconv.FormatFloat(row.Percent, 'f', 2, 64)
			result = "fail"
			if row.Passed {
				result = "pass"
			}
		}
		out = append(out, []string{
			row.RollNumber, row.Name, row.Status, score, strconv.FormatFloat(row.TotalMarks, 'f', -1, 64),
			percent, row.Grade, result, row.Feedback,
		})
	}
	return core.WriteSheet(format, w, sheetName(tst.Name), out)
}

// sheetName returns a valid XLSX sheet name (max 31 chars, no []:*?/\).
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	if name == "" {
		return "Results"
	}
	return name
}

// StudentReport asks the AI for a narrative report on the completed evaluations of a student,
// optionally limited to one test.
func (svc *Service) StudentReport(ctx context.Context, studentID, testID string) (StudentReport, error) {
	std, err := svc.students.Get(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	evs, err := svc.evaluations.Query(ctx, evaluation.QueryFilter{
		StudentID: studentID,
		TestID:    testID,
		Status:    []string{evaluation.StatusCompleted},
	})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying evaluations")
	}

	// latest completed evaluation per test
	byTest := make(map[string]evaluation.Evaluation, len(evs))
	for _, ev := range evs {
		if prev, ok := byTest[ev.TestID]; ok && prev.CompletedAt.Time.After(ev.CompletedAt.Time) {
			continue
		}
		byTest[ev.TestID] = ev
	}
	if len(byTest) == 0 {
		return StudentReport{}, core.NewValidationError(ErrNoResults)
	}

	rep := StudentReport{StudentID: std.ID, Name: std.Name, Results: make([]StudentTestResult, 0, len(byTest))}
	for tid, ev := range byTest {
		tst, err := svc.tests.Get(ctx, tid)
		if err != nil {
			return StudentReport{}, errors.Wrap(err, "getting test")
		}
		percent := round2(ev.Percent())
		rep.Results = append(rep.Results, StudentTestResult{
			TestID:     tst.ID,
			TestName:   tst.Name,
			Score:      ev.Score.Float64,
			TotalMarks: ev.TotalMarks,
			Percent:    percent,
			Grade:      Grade(percent),
			Feedback:   ev.Feedback,
		})
	}
	sort.Slice(rep.Results, func(i, j int) bool { return rep.Results[i].TestName < rep.Results[j].TestName })

	narrative, err := svc.ai.Complete(ctx, core.ChatRequest{
		System: studentReportSystemPrompt,
		Prompt: buildStudentReportPrompt(rep),
	})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "generating report")
	}
	rep.Narrative = strings.TrimSpace(narrative)
	return rep, nil
}

func buildStudentReportPrompt(rep StudentReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a progress report of 2 to 4 short paragraphs for %s based on these results:\n", rep.Name)
	for _, r := range rep.Results {
		fmt.Fprintf(&b, "- %s: %g/%g (%.1f%%, grade %s)", r.TestName, r.Score, r.TotalMarks, r.Percent, r.Grade)
		if r.Feedback != "" {
			fmt.Fprintf(&b, ". Marker feedback: %s", r.Feedback)
		}
		b.WriteString("\n")
	}
	b.WriteString("Mention strengths, areas to improve and one concrete suggestion.")
	return b.String()
}
