package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

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

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the database backend: SQL is nil when the in-memory backend is used.
	Storage struct {
		SQL   *sqlx.DB
		Repos database.Repositories
	}

	// Services are the core services of the application.
	Services struct {
		dig.In

		Users       *user.Service
		Classes     *class.Service
		Subjects    *subject.Service
		Students    *student.Service
		Tests       *exam.Service
		Papers      *paper.Service
		Questions   *question.Service
		Evaluations *evaluation.Service
		Reports     *report.Service
	}
)

// StatusCheck checks the SQL database, if any.
func (s Storage) StatusCheck(ctx context.Context) error {
	if s.SQL == nil {
		return nil
	}
	return database.StatusCheck(ctx, s.SQL)
}

func (s Storage) Close() error {
	if s.SQL == nil {
		return nil
	}
	return s.SQL.Close()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.InMemory {
		loggerParam.Logger.Info("using in-memory database")
		return Storage{Repos: database.InMemRepositories(inmemdb.NewDB())}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{SQL: db, Repos: database.PostgresRepositories(db)}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newChatCompleter(conf *core.Config, logger core.Logger) (core.ChatCompleter, error) {
	return aisvc.NewChatCompleter(context.Background(), conf, logger)
}

func newImageNormalizer() paper.ImageNormalizer {
	return imgproc.NewNormalizer()
}

func newUserService(conf *core.Config, storage Storage, mailSvc core.EmailService, logger core.Logger) *user.Service {
	return user.NewService(conf, storage.Repos.Users, mailSvc, logger)
}

func newClassService(storage Storage) *class.Service {
	repos := storage.Repos
	return class.NewService(repos.Classes, class.JoinDependents(repos.Students, repos.Tests))
}

func newSubjectService(storage Storage, classes *class.Service) *subject.Service {
	return subject.NewService(storage.Repos.Subjects, classes)
}

func newStudentService(
	storage Storage,
	classes *class.Service,
	cache core.Cache,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *student.Service {
	return student.NewService(storage.Repos.Students, classes, cache, validate, translator, logger)
}

func newTestService(storage Storage, classes *class.Service, subjects *subject.Service, cache core.Cache, logger core.Logger) *exam.Service {
	return exam.NewService(storage.Repos.Tests, classes, subjects, cache, logger)
}

func newPaperService(
	conf *core.Config,
	storage Storage,
	files core.FileStorage,
	cache core.Cache,
	tests *exam.Service,
	students *student.Service,
	images paper.ImageNormalizer,
	logger core.Logger,
) *paper.Service {
	return paper.NewService(conf, storage.Repos.Papers, files, cache, tests, students, images, logger)
}

func newQuestionService(
	storage Storage,
	tests *exam.Service,
	ai core.ChatCompleter,
	validate *validator.Validate,
	logger core.Logger,
) *question.Service {
	return question.NewService(storage.Repos.Questions, tests, ai, validate, logger)
}

type evaluationParams struct {
	dig.In

	Conf      *core.Config
	Storage   Storage
	Tests     *exam.Service
	Papers    *paper.Service
	Questions *question.Service
	Students  *student.Service
	Users     *user.Service
	AI        core.ChatCompleter
	Mail      core.EmailService
	Cache     core.Cache
	Logger    core.Logger
}

func newEvaluationService(p evaluationParams) *evaluation.Service {
	return evaluation.NewService(p.Conf, evaluation.Deps{
		Repo:      p.Storage.Repos.Evaluations,
		Tests:     p.Tests,
		Papers:    p.Papers,
		Questions: p.Questions,
		Students:  p.Students,
		Users:     p.Users,
		Evaluator: aisvc.NewEvaluator(p.AI),
		Mail:      p.Mail,
		Cache:     p.Cache,
	}, p.Logger)
}

func newReportService(
	conf *core.Config,
	evaluations *evaluation.Service,
	tests *exam.Service,
	students *student.Service,
	cache core.Cache,
	ai core.ChatCompleter,
	logger core.Logger,
) *report.Service {
	return report.NewService(conf, evaluations, tests, students, cache, ai, logger)
}

func newReaper(conf *core.Config, files core.FileStorage, storage Storage, logger core.Logger) *storagesvc.Reaper {
	return storagesvc.NewReaper(conf, files, storage.Repos.Papers, nil, logger)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
	Storage    Storage
	Files      core.FileStorage
	Services   Services
}

func newServer(p serverParams) *echoapi.Server {
	svcs := p.Services
	deps := echoapi.Deps{
		Validate:    p.Validate,
		Translator:  p.Translator,
		Logger:      p.Logger,
		Users:       svcs.Users,
		Classes:     svcs.Classes,
		Subjects:    svcs.Subjects,
		Students:    svcs.Students,
		Tests:       svcs.Tests,
		Papers:      svcs.Papers,
		Questions:   svcs.Questions,
		Evaluations: svcs.Evaluations,
		Reports:     svcs.Reports,
		Uploads:     upload.NewRouter(),
		StatusCheck: p.Storage.StatusCheck,
	}
	if local, ok := p.Files.(*storagesvc.LocalStorage); ok {
		deps.Files = local
	}
	return echoapi.NewServer(p.Conf, deps)
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(cachesvc.New))
	must(c.Provide(storagesvc.New))
	must(c.Provide(newChatCompleter))
	must(c.Provide(newImageNormalizer))

	must(c.Provide(newUserService))
	must(c.Provide(newClassService))
	must(c.Provide(newSubjectService))
	must(c.Provide(newStudentService))
	must(c.Provide(newTestService))
	must(c.Provide(newPaperService))
	must(c.Provide(newQuestionService))
	must(c.Provide(newEvaluationService))
	must(c.Provide(newReportService))
	must(c.Provide(newReaper))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
