package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/report"
)

type reportApi struct {
	deps Deps
}

type ResultsResponse struct {
	Test exam.Test    `json:"test"`
	Rows []report.Row `json:"rows"`
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := reportApi{deps: deps}
	staff := staffMiddleware()

	g.GET("/tests/:id/report", api.summary, jwt, staff)
	g.GET("/tests/:id/report/export", api.export, jwt, staff)
	g.GET("/tests/:id/results", api.results, jwt, staff)
	g.POST("/students/:id/report", api.studentReport, jwt, staff)
}

func (api *reportApi) summary(ctx echo.Context) error {
	summary, err := api.deps.Reports.TestSummary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing test")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *reportApi) results(ctx echo.Context) error {
	tst, rows, err := api.deps.Reports.Results(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing results")
	}
	if rows == nil {
		rows = []report.Row{}
	}
	return ctx.JSON(http.StatusOK, ResultsResponse{Test: tst, Rows: rows})
}

func (api *reportApi) export(ctx echo.Context) error {
	format, err := sheetFormat(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	tst, err := api.deps.Tests.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}

	var buf bytes.Buffer
	if err := api.deps.Reports.Export(reqCtx, tst.ID, format, &buf); err != nil {
		return errors.Wrap(err, "exporting results")
	}
	attachment(ctx, format, tst.Name+"-results")
	return ctx.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (api *reportApi) studentReport(ctx echo.Context) error {
	rep, err := api.deps.Reports.StudentReport(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("test_id"))
	if err != nil {
		return errors.Wrap(err, "generating student report")
	}
	return ctx.JSON(http.StatusOK, rep)
}
