package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/evaluation"
)

type evaluationApi struct {
	deps Deps
}

type (
	// StartEvaluationRequest selects the answer sheets to evaluate; all assigned sheets when empty.
	StartEvaluationRequest struct {
		PaperIDs []string `json:"paper_ids" validate:"omitempty,dive,required"`
	}

	evaluationQuery struct {
		StudentID string   `query:"student_id"`
		Status    []string `query:"status" validate:"omitempty,dive,oneof=pending processing completed failed"`
	}
)

func registerEvaluationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := evaluationApi{deps: deps}
	staff := staffMiddleware()

	g.POST("/tests/:id/evaluations", api.start, jwt, staff)
	g.GET("/tests/:id/evaluations", api.listForTest, jwt, staff)
	g.GET("/tests/:id/evaluations/progress", api.progress, jwt, staff)

	eg := g.Group("/evaluations", jwt, staff)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/retry", api.retry)
	eg.POST("/:id/cancel", api.cancel)
}

func (api *evaluationApi) start(ctx echo.Context) error {
	var data StartEvaluationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartEvaluationRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}

	evs, err := api.deps.Evaluations.Start(ctx.Request().Context(), ctx.Param("id"), data.PaperIDs...)
	if err != nil {
		return errors.Wrap(err, "starting evaluations")
	}
	return ctx.JSON(http.StatusAccepted, evs)
}

func (api *evaluationApi) listForTest(ctx echo.Context) error {
	var query evaluationQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to evaluationQuery")
	}
	if err := api.deps.Validate.Struct(query); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	if _, err := api.deps.Tests.Get(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "getting test")
	}
	evs, err := api.deps.Evaluations.Query(reqCtx, evaluation.QueryFilter{
		TestID:    ctx.Param("id"),
		StudentID: query.StudentID,
		Status:    query.Status,
	})
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	if evs == nil {
		evs = []evaluation.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evs)
}

func (api *evaluationApi) progress(ctx echo.Context) error {
	prog, err := api.deps.Evaluations.Progress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting evaluation progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *evaluationApi) retrieve(ctx echo.Context) error {
	ev, err := api.deps.Evaluations.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting evaluation")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *evaluationApi) retry(ctx echo.Context) error {
	ev, err := api.deps.Evaluations.Retry(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrying evaluation")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *evaluationApi) cancel(ctx echo.Context) error {
	ev, err := api.deps.Evaluations.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling evaluation")
	}
	return ctx.JSON(http.StatusOK, ev)
}
