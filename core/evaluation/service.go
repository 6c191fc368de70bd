package evaluation

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/question"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/user"
)

// processing evaluations older than staleAfter are considered abandoned by a dead worker
const staleAfter = 15 * time.Minute

var (
	ErrNotFound         = core.NewNotFoundError("evaluation not found")
	ErrNotRetryable     = errors.New("only failed evaluations can be retried")
	ErrNotCancellable   = errors.New("only pending evaluations can be cancelled")
	ErrPaperNotAssigned = errors.New("the answer sheet is not assigned to a student")
	ErrNoAnswerSheets   = errors.New("the test has no assigned answer sheets to evaluate")
	errCancelled        = "cancelled"
)

type (
	Repository interface {
		CreateEvaluations(ctx context.Context, evs []Evaluation) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		// QueryEvaluations returns the matching evaluations ordered by creation date.
		QueryEvaluations(ctx context.Context, filter QueryFilter) ([]Evaluation, error)
		UpdateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
		// ClaimDue atomically moves up to limit pending evaluations due at now to processing,
		// incrementing their attempts, and returns them.
		ClaimDue(ctx context.Context, now time.Time, limit int) ([]Evaluation, error)
		// RequeueStale moves processing evaluations started before `before` back to pending.
		RequeueStale(ctx context.Context, before time.Time) (int, error)
		CountByStatus(ctx context.Context, testID string) (map[string]int, error)
		// MarkNotified records that the completion notice of a test was sent.
		// It returns false when it was already recorded.
		MarkNotified(ctx context.Context, testID string, at time.Time) (bool, error)
		ClearNotified(ctx context.Context, testID string) error
	}

	// Input is everything an Evaluator gets to mark an answer sheet.
	Input struct {
		Test             exam.Test
		StudentName      string
		Questions        []question.Question
		AnswerSheetURL   string
		AnswerSheetType  string // paper document type
		QuestionPaperURL string
		AnswerKeyURL     string
	}

	Outcome struct {
		Score    float64
		Feedback string
		Results  Results
	}

	// Evaluator marks an answer sheet.
	Evaluator interface {
		Evaluate(ctx context.Context, in Input) (Outcome, error)
	}

	TestGetter interface {
		Get(ctx context.Context, id string) (exam.Test, error)
	}

	PaperSource interface {
		Get(ctx context.Context, id string) (paper.Paper, error)
		ListForTest(ctx context.Context, testID, kind string) ([]paper.Paper, error)
		URL(ctx context.Context, p paper.Paper, signed bool) (string, error)
	}

	QuestionLister interface {
		ListForTest(ctx context.Context, testID string) ([]question.Question, error)
	}

	StudentGetter interface {
		Get(ctx context.Context, id string) (student.Student, error)
	}

	UserGetter interface {
		GetByID(id string) (user.User, error)
	}

	Deps struct {
		Repo      Repository
		Tests     TestGetter
		Papers    PaperSource
		Questions QuestionLister
		Students  StudentGetter
		Users     UserGetter
		Evaluator Evaluator
		Mail      core.EmailService
		Cache     core.Cache
		Clock     clockwork.Clock
	}

	Service struct {
		Deps
		conf   *core.Config
		logger core.Logger
	}
)

func NewService(conf *core.Config, deps Deps, logger core.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Service{Deps: deps, conf: conf, logger: logger}
}

func (svc *Service) maxAttempts() int {
	if svc.conf.Evaluation.MaxAttempts > 0 {
		return svc.conf.Evaluation.MaxAttempts
	}
	return 3
}

func (svc *Service) invalidate(ctx context.Context, testID string) {
	if err := svc.Cache.Delete(ctx, core.ReportCacheKey(testID)); err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating report cache of test %s: %v", testID, err), err)
	}
}

// Start queues an evaluation for every assigned answer sheet of the test (or the given ones)
// which is not already queued, running or completed. Failed evaluations are queued again.
func (svc *Service) Start(ctx context.Context, testID string, paperIDs ...string) ([]Evaluation, error) {
	tst, err := svc.Tests.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	sheets, err := svc.Papers.ListForTest(ctx, testID, paper.KindAnswerSheet)
	if err != nil {
		return nil, errors.Wrap(err, "listing answer sheets")
	}

	if len(paperIDs) > 0 {
		byID := make(map[string]paper.Paper, len(sheets))
		for _, p := range sheets {
			byID[p.ID] = p
		}
		selected := make([]paper.Paper, 0, len(paperIDs))
		for _, id := range paperIDs {
			p, ok := byID[id]
			if !ok {
				return nil, core.NewFieldError("paper_ids", fmt.Sprintf("answer sheet %s not found in this test", id))
			}
			if !p.IsAssigned() {
				return nil, core.NewValidationError(errors.Wrap(ErrPaperNotAssigned, p.Filename))
			}
			selected = append(selected, p)
		}
		sheets = selected
	}

	existing, err := svc.Repo.QueryEvaluations(ctx, QueryFilter{TestID: testID})
	if err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	// the latest evaluation of each paper wins
	latest := make(map[string]Evaluation, len(existing))
	for _, ev := range existing {
		latest[ev.PaperID] = ev
	}

	now := svc.Clock.Now().UTC()
	var (
		toCreate []Evaluation
		queued   []Evaluation
		assigned int
	)
	for _, p := range sheets {
		if !p.IsAssigned() {
			continue
		}
		assigned++
		ev, ok := latest[p.ID]
		if ok && ev.Status != StatusFailed {
			continue
		}
		if ok { // failed: queue it again
			svc.requeue(&ev, now)
			if ev, err = svc.Repo.UpdateEvaluation(ctx, ev); err != nil {
				return nil, errors.Wrap(err, "requeuing evaluation")
			}
			queued = append(queued, ev)
			continue
		}
		toCreate = append(toCreate, Evaluation{
			ID:            uuid.NewString(),
			TestID:        testID,
			StudentID:     p.StudentID.String,
			PaperID:       p.ID,
			Status:        StatusPending,
			MaxAttempts:   svc.maxAttempts(),
			TotalMarks:    tst.TotalMarks,
			Results:       Results{},
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if assigned == 0 {
		return nil, core.NewValidationError(ErrNoAnswerSheets)
	}

	if len(toCreate) > 0 {
		created, err := svc.Repo.CreateEvaluations(ctx, toCreate)
		if err != nil {
			return nil, errors.Wrap(err, "creating evaluations")
		}
		queued = append(queued, created...)
	}
	if len(queued) > 0 {
		queuedCounter.Add(float64(len(queued)))
		if err := svc.Repo.ClearNotified(ctx, testID); err != nil {
			return nil, errors.Wrap(err, "clearing notification")
		}
		svc.invalidate(ctx, testID)
	}
	if queued == nil {
		queued = []Evaluation{}
	}
	return queued, nil
}

func (svc *Service) requeue(ev *Evaluation, now time.Time) {
	ev.Status = StatusPending
	ev.Attempts = 0
	ev.MaxAttempts = svc.maxAttempts()
	ev.LastError = ""
	ev.NextAttemptAt = now
	ev.StartedAt = null.Time{}
	ev.CompletedAt = null.Time{}
	ev.UpdatedAt = now
}

func (svc *Service) Get(ctx context.Context, id string) (Evaluation, error) {
	return svc.Repo.GetEvaluation(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Evaluation, error) {
	return svc.Repo.QueryEvaluations(ctx, filter)
}

func (svc *Service) Progress(ctx context.Context, testID string) (Progress, error) {
	if _, err := svc.Tests.Get(ctx, testID); err != nil {
		return Progress{}, err
	}
	counts, err := svc.Repo.CountByStatus(ctx, testID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "counting evaluations")
	}
	return NewProgress(counts), nil
}

// Retry queues a failed evaluation again with a fresh attempts counter.
func (svc *Service) Retry(ctx context.Context, id string) (Evaluation, error) {
	ev, err := svc.Repo.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if ev.Status != StatusFailed {
		return Evaluation{}, core.NewValidationError(ErrNotRetryable)
	}
	svc.requeue(&ev, svc.Clock.Now().UTC())
	if ev, err = svc.Repo.UpdateEvaluation(ctx, ev); err != nil {
		return Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	queuedCounter.Inc()
	if err := svc.Repo.ClearNotified(ctx, ev.TestID); err != nil {
		return Evaluation{}, errors.Wrap(err, "clearing notification")
	}
	svc.invalidate(ctx, ev.TestID)
	return ev, nil
}

// Cancel fails a pending evaluation.
func (svc *Service) Cancel(ctx context.Context, id string) (Evaluation, error) {
	ev, err := svc.Repo.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if ev.Status != StatusPending {
		return Evaluation{}, core.NewValidationError(ErrNotCancellable)
	}
	now := svc.Clock.Now().UTC()
	ev.Status = StatusFailed
	ev.LastError = errCancelled
	ev.CompletedAt = null.TimeFrom(now)
	ev.UpdatedAt = now
	if ev, err = svc.Repo.UpdateEvaluation(ctx, ev); err != nil {
		return Evaluation{}, errors.Wrap(err, "updating evaluation")
	}
	svc.invalidate(ctx, ev.TestID)
	svc.notifyIfDone(ctx, ev.TestID)
	return ev, nil
}

// ProcessDue claims a batch of due evaluations and runs them concurrently.
// It returns the number of evaluations processed.
func (svc *Service) ProcessDue(ctx context.Context) (int, error) {
	now := svc.Clock.Now().UTC()
	if n, err := svc.Repo.RequeueStale(ctx, now.Add(-staleAfter)); err != nil {
		return 0, errors.Wrap(err, "requeuing stale evaluations")
	} else if n > 0 {
		svc.logger.Warn(fmt.Sprintf("requeued %d stale evaluations", n))
	}

	batch := svc.conf.Evaluation.BatchSize
	if batch <= 0 {
		batch = 1
	}
	claimed, err := svc.Repo.ClaimDue(ctx, now, batch)
	if err != nil {
		return 0, errors.Wrap(err, "claiming due evaluations")
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		tests = make(map[string]struct{})
	)
	for _, ev := range claimed {
		ev := ev
		g.Go(func() error {
			if err := svc.process(ctx, ev); err != nil {
				return errors.Wrapf(err, "processing evaluation %s", ev.ID)
			}
			mu.Lock()
			tests[ev.TestID] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	for testID := range tests {
		svc.invalidate(ctx, testID)
		svc.notifyIfDone(ctx, testID)
	}
	return len(claimed), err
}

// process runs one claimed evaluation and saves its outcome.
// Only failing to save is returned: evaluation errors are recorded on the Evaluation.
func (svc *Service) process(ctx context.Context, ev Evaluation) error {
	start := svc.Clock.Now()
	out, evalErr := svc.evaluate(ctx, ev)
	durationHistogram.Observe(svc.Clock.Since(start).Seconds())

	now := svc.Clock.Now().UTC()
	ev.UpdatedAt = now
	switch {
	case evalErr == nil:
		ev.Status = StatusCompleted
		ev.Score = null.Float64From(clampScore(out.Score, ev.TotalMarks))
		ev.Feedback = out.Feedback
		ev.Results = out.Results
		if ev.Results == nil {
			ev.Results = Results{}
		}
		ev.LastError = ""
		ev.CompletedAt = null.TimeFrom(now)
		processedCounter.WithLabelValues("completed").Inc()
	case ev.Attempts < ev.MaxAttempts:
		ev.Status = StatusPending
		ev.LastError = evalErr.Error()
		ev.NextAttemptAt = now.Add(svc.conf.Evaluation.RetryBackoff * time.Duration(ev.Attempts))
		processedCounter.WithLabelValues("retried").Inc()
		svc.logger.Warn(fmt.Sprintf("evaluation %s attempt %d/%d failed: %v", ev.ID, ev.Attempts, ev.MaxAttempts, evalErr), evalErr)
	default:
		ev.Status = StatusFailed
		ev.LastError = evalErr.Error()
		ev.CompletedAt = null.TimeFrom(now)
		processedCounter.WithLabelValues("failed").Inc()
		svc.logger.Error(fmt.Sprintf("evaluation %s failed after %d attempts: %v", ev.ID, ev.Attempts, evalErr), evalErr)
	}

	_, err := svc.Repo.UpdateEvaluation(ctx, ev)
	return err
}

func (svc *Service) evaluate(ctx context.Context, ev Evaluation) (Outcome, error) {
	tst, err := svc.Tests.Get(ctx, ev.TestID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting test")
	}
	sheet, err := svc.Papers.Get(ctx, ev.PaperID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting answer sheet")
	}
	in := Input{Test: tst, AnswerSheetType: sheet.DocumentType}
	if in.AnswerSheetURL, err = svc.Papers.URL(ctx, sheet, true); err != nil {
		return Outcome{}, err
	}
	if std, err := svc.Students.Get(ctx, ev.StudentID); err == nil {
		in.StudentName = std.Name
	}
	if in.Questions, err = svc.Questions.ListForTest(ctx, ev.TestID); err != nil {
		return Outcome{}, errors.Wrap(err, "listing questions")
	}
	if in.QuestionPaperURL, err = svc.firstPaperURL(ctx, ev.TestID, paper.KindQuestionPaper); err != nil {
		return Outcome{}, err
	}
	if in.AnswerKeyURL, err = svc.firstPaperURL(ctx, ev.TestID, paper.KindAnswerKey); err != nil {
		return Outcome{}, err
	}
	return svc.Evaluator.Evaluate(ctx, in)
}

func (svc *Service) firstPaperURL(ctx context.Context, testID, kind string) (string, error) {
	papers, err := svc.Papers.ListForTest(ctx, testID, kind)
	if err != nil {
		return "", errors.Wrapf(err, "listing %s papers", kind)
	}
	if len(papers) == 0 {
		return "", nil
	}
	return svc.Papers.URL(ctx, papers[0], true)
}

// notifyIfDone emails the test creator once no evaluation of the test is queued or running.
func (svc *Service) notifyIfDone(ctx context.Context, testID string) {
	counts, err := svc.Repo.CountByStatus(ctx, testID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("counting evaluations of test %s: %v", testID, err), err)
		return
	}
	progress := NewProgress(counts)
	if progress.Total == 0 || !progress.Done() {
		return
	}

	tst, err := svc.Tests.Get(ctx, testID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("getting test %s: %v", testID, err), err)
		return
	}
	if !tst.CreatedBy.Valid {
		return
	}
	usr, err := svc.Users.GetByID(tst.CreatedBy.String)
	if err != nil || usr.Email == "" || !usr.IsActive {
		return
	}

	first, err := svc.Repo.MarkNotified(ctx, testID, svc.Clock.Now().UTC())
	if err != nil {
		svc.logger.Error(fmt.Sprintf("marking test %s as notified: %v", testID, err), err)
		return
	}
	if !first {
		return
	}
	svc.Mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Evaluation of %s is done", tst.Name),
		TemplateName: "evaluation_completed",
		TemplateData: map[string]interface{}{
			"Name":      usr.Name,
			"TestName":  tst.Name,
			"TestID":    tst.ID,
			"Completed": progress.Completed,
			"Failed":    progress.Failed,
		},
	})
}
