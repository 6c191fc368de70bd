package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/exam"
)

type testApi struct {
	deps Deps
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft scheduled completed archived"`
}

func registerTestAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := testApi{deps: deps}

	tg := g.Group("/tests", jwt, staffMiddleware())
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.POST("/:id/status", api.setStatus)
	tg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *testApi) create(ctx echo.Context) error {
	var data exam.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	tst, err := api.deps.Tests.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, tst)
}

func (api *testApi) query(ctx echo.Context) error {
	filter := new(exam.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []exam.Test{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tests, err := api.deps.Tests.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying tests")
	}
	if tests == nil {
		tests = []exam.Test{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *testApi) retrieve(ctx echo.Context) error {
	tst, err := api.deps.Tests.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting test")
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *testApi) update(ctx echo.Context) error {
	var data exam.UpdateTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	tst, err := api.deps.Tests.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating test")
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *testApi) setStatus(ctx echo.Context) error {
	var data SetStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatusRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}

	tst, err := api.deps.Tests.SetStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting test status")
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *testApi) destroy(ctx echo.Context) error {
	if err := api.deps.Tests.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}
