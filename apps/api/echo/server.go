package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
)

type (
	// FileServer serves the files of the local storage driver through signed URLs.
	FileServer interface {
		Verify(key, expires, signature string) error
		Open(ctx context.Context, key string) (io.ReadCloser, error)
	}

	Deps struct {
		Validate    *validator.Validate
		Translator  ut.Translator
		Logger      core.Logger
		Users       user.ServiceInterface
		Classes     *class.Service
		Subjects    *subject.Service
		Students    *student.Service
		Tests       *exam.Service
		Papers      *paper.Service
		Questions   *question.Service
		Evaluations *evaluation.Service
		Reports     *report.Service
		Uploads     *upload.Router
		Files       FileServer // nil unless files are stored on local disk
		StatusCheck func(ctx context.Context) error
	}

	Server struct {
		*http.Server
		app      *echo.Echo
		auth     *Auth
		deps     Deps
		conf     *core.Config
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(conf *core.Config, deps Deps) *Server {
	app := echo.New()
	s := &Server{
		Server: &http.Server{
			Addr:    conf.Server.Host,
			Handler: app,
		},
		app:      app,
		auth:     NewAuth(conf),
		deps:     deps,
		conf:     conf,
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.conf.FrontendBaseURL},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Translator, s.deps.Logger, s.SignalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.app.Group("/v1")
	jwt := s.auth.Middleware()

	registerUserAPI(v1, jwt, s.auth, s.deps.Users, s.deps.Validate)
	registerClassAPI(v1, jwt, s.deps)
	registerSubjectAPI(v1, jwt, s.deps)
	registerStudentAPI(v1, jwt, s.deps)
	registerTestAPI(v1, jwt, s.deps)
	registerPaperAPI(v1, jwt, s.deps)
	registerQuestionAPI(v1, jwt, s.deps)
	registerEvaluationAPI(v1, jwt, s.deps)
	registerReportAPI(v1, jwt, s.deps)
	registerUploadAPI(v1, jwt, s.deps)
	registerFileAPI(v1, s.deps.Files)
}

// Auth returns the JWT issuer of the server.
func (s *Server) Auth() *Auth {
	return s.auth
}

// Start listens until the server is shut down. Failures are sent to Errors.
func (s *Server) Start() {
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": s.conf.Build}
	if s.deps.StatusCheck != nil {
		if err := s.deps.StatusCheck(ctx.Request().Context()); err != nil {
			s.deps.Logger.Error("health check failed", err)
			status["status"] = "db not ready"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}
