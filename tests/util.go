// Package testutil builds the application on the in-memory database for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	echoapi "github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/question"
	"github.com/trezcool/tathmini/core/report"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/subject"
	"github.com/trezcool/tathmini/core/upload"
	"github.com/trezcool/tathmini/core/user"
	aisvc "github.com/trezcool/tathmini/services/ai"
	cachesvc "github.com/trezcool/tathmini/services/cache"
	emailsvc "github.com/trezcool/tathmini/services/email"
	"github.com/trezcool/tathmini/services/imgproc"
	logsvc "github.com/trezcool/tathmini/services/logger"
	storagesvc "github.com/trezcool/tathmini/services/storage"
	"github.com/trezcool/tathmini/storage/database"
	inmemdb "github.com/trezcool/tathmini/storage/database/inmem"
)

var parseTemplates sync.Once

// NewLogger returns a silent logger.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// FakeAI replies to chat completions with canned replies, in order. The last reply is repeated.
type FakeAI struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []core.ChatRequest
}

var _ core.ChatCompleter = (*FakeAI)(nil)

func (ai *FakeAI) Reply(replies ...string) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.replies, ai.err = replies, nil
}

func (ai *FakeAI) Fail(err error) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.replies, ai.err = nil, err
}

func (ai *FakeAI) Requests() []core.ChatRequest {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	out := make([]core.ChatRequest, len(ai.requests))
	copy(out, ai.requests)
	return out
}

func (ai *FakeAI) Complete(_ context.Context, req core.ChatRequest) (string, error) {
	ai.mu.Lock()
	defer ai.mu.Unlock()
	ai.requests = append(ai.requests, req)
	if ai.err != nil {
		return "", ai.err
	}
	switch len(ai.replies) {
	case 0:
		return "", aisvc.ErrEmptyResponse
	case 1:
		return ai.replies[0], nil
	}
	reply := ai.replies[0]
	ai.replies = ai.replies[1:]
	return reply, nil
}

// App is the whole application running on the in-memory database.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	DB         *inmemdb.DB
	Repos      database.Repositories
	Clock      clockwork.FakeClock
	Mail       *emailsvc.ConsoleService
	AI         *FakeAI
	Files      *storagesvc.LocalStorage
	Cache      *cachesvc.MemoryCache
	Users      *user.Service
	Classes    *class.Service
	Subjects   *subject.Service
	Students   *student.Service
	Tests      *exam.Service
	Papers     *paper.Service
	Questions  *question.Service
	Evaluation *evaluation.Service
	Reports    *report.Service
	Server     *echoapi.Server
}

// NewApp builds an App storing its files in a temporary directory.
func NewApp(t *testing.T) *App {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Storage.LocalDir = t.TempDir()
	logger := NewLogger(conf)

	parseTemplates.Do(func() { core.ParseEmailTemplates(conf, logger) })

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	question.InitValidators(validate, translator)
	paper.InitValidators(validate, translator)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	files, err := storagesvc.NewLocalStorage(conf, clock)
	if err != nil {
		t.Fatalf("NewLocalStorage(): %v", err)
	}

	db := inmemdb.NewDB()
	repos := database.InMemRepositories(db)
	app := &App{
		Conf:     conf,
		Logger:   logger,
		Validate: validate,
		DB:       db,
		Repos:    repos,
		Clock:    clock,
		Mail:     emailsvc.NewConsoleServiceMock(conf, logger),
		AI:       &FakeAI{},
		Files:    files,
		Cache:    cachesvc.NewMemoryCache(clock),
	}

	app.Users = user.NewService(conf, repos.Users, app.Mail, logger)
	app.Classes = class.NewService(repos.Classes, class.JoinDependents(repos.Students, repos.Tests))
	app.Subjects = subject.NewService(repos.Subjects, app.Classes)
	app.Students = student.NewService(repos.Students, app.Classes, app.Cache, validate, translator, logger)
	app.Tests = exam.NewService(repos.Tests, app.Classes, app.Subjects, app.Cache, logger)
	app.Papers = paper.NewService(conf, repos.Papers, files, app.Cache, app.Tests, app.Students, imgproc.NewNormalizer(), logger)
	app.Questions = question.NewService(repos.Questions, app.Tests, app.AI, validate, logger)
	app.Evaluation = evaluation.NewService(conf, evaluation.Deps{
		Repo:      repos.Evaluations,
		Tests:     app.Tests,
		Papers:    app.Papers,
		Questions: app.Questions,
		Students:  app.Students,
		Users:     app.Users,
		Evaluator: aisvc.NewEvaluator(app.AI),
		Mail:      app.Mail,
		Cache:     app.Cache,
		Clock:     clock,
	}, logger)
	app.Reports = report.NewService(conf, app.Evaluation, app.Tests, app.Students, app.Cache, app.AI, logger)

	app.Server = echoapi.NewServer(conf, echoapi.Deps{
		Validate:    validate,
		Translator:  translator,
		Logger:      logger,
		Users:       app.Users,
		Classes:     app.Classes,
		Subjects:    app.Subjects,
		Students:    app.Students,
		Tests:       app.Tests,
		Papers:      app.Papers,
		Questions:   app.Questions,
		Evaluations: app.Evaluation,
		Reports:     app.Reports,
		Uploads:     upload.NewRouter(),
		Files:       files,
	})
	return app
}

// Token returns a JWT authenticating usr.
func (app *App) Token(t *testing.T, usr user.User) string {
	t.Helper()
	auth := app.Server.Auth()
	token, err := auth.GenerateToken(auth.UserClaims(usr))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (app *App) CreateClass(t *testing.T, name, section string) class.Class {
	t.Helper()
	cls, err := app.Classes.Create(context.Background(), class.NewClass{Name: name, Grade: name, Section: section, AcademicYear: "2024"})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return cls
}

func (app *App) CreateSubject(t *testing.T, name, code, classID string) subject.Subject {
	t.Helper()
	sbj, err := app.Subjects.Create(context.Background(), subject.NewSubject{ClassID: classID, Name: name, Code: strings.ToUpper(code)})
	if err != nil {
		t.Fatalf("CreateSubject(): %v", err)
	}
	return sbj
}

func (app *App) CreateStudent(t *testing.T, classID, name, rollNumber string) student.Student {
	t.Helper()
	std, err := app.Students.Create(context.Background(), student.NewStudent{ClassID: classID, Name: name, RollNumber: rollNumber})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return std
}

func (app *App) CreateTest(t *testing.T, name, classID, subjectID string, totalMarks, passingMarks float64) exam.Test {
	t.Helper()
	tst, err := app.Tests.Create(context.Background(), exam.NewTest{
		Name:         name,
		ClassID:      classID,
		SubjectID:    subjectID,
		TestDate:     "2024-03-01",
		TotalMarks:   totalMarks,
		PassingMarks: passingMarks,
		Status:       exam.StatusDraft,
	}, "")
	if err != nil {
		t.Fatalf("CreateTest(): %v", err)
	}
	return tst
}

func (app *App) CreateQuestion(t *testing.T, testID, text string, marks float64) question.Question {
	t.Helper()
	nq := question.NewQuestion{Text: text, Type: question.TypeShort, Marks: marks}
	if err := nq.Validate(app.Validate); err != nil {
		t.Fatalf("NewQuestion.Validate(): %v", err)
	}
	q, err := app.Questions.Create(context.Background(), testID, nq)
	if err != nil {
		t.Fatalf("CreateQuestion(): %v", err)
	}
	return q
}

// UploadSheet stores an answer sheet of the test, assigned to studentID when not empty.
func (app *App) UploadSheet(t *testing.T, testID, studentID, filename string) paper.Paper {
	t.Helper()
	content := "answers of " + filename
	p, err := app.Papers.Upload(context.Background(), paper.NewPaper{
		TestID:      testID,
		StudentID:   studentID,
		Kind:        paper.KindAnswerSheet,
		Filename:    filename,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
	}, strings.NewReader(content))
	if err != nil {
		t.Fatalf("UploadSheet(): %v", err)
	}
	return p
}
