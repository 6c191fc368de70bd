package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/question"
)

type questionApi struct {
	deps Deps
}

func registerQuestionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := questionApi{deps: deps}
	staff := staffMiddleware()

	g.GET("/tests/:id/questions", api.listForTest, jwt, staff)
	g.POST("/tests/:id/questions", api.create, jwt, staff)
	g.POST("/tests/:id/questions/generate", api.generate, jwt, staff)

	qg := g.Group("/questions", jwt, staff)
	qg.GET("/:id", api.retrieve)
	qg.PUT("/:id", api.update)
	qg.DELETE("/:id", api.destroy)
}

func (api *questionApi) listForTest(ctx echo.Context) error {
	questions, err := api.deps.Questions.ListForTest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing questions")
	}
	if questions == nil {
		questions = []question.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *questionApi) create(ctx echo.Context) error {
	var data question.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	q, err := api.deps.Questions.Create(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *questionApi) generate(ctx echo.Context) error {
	var data question.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	questions, err := api.deps.Questions.Generate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "generating questions")
	}
	return ctx.JSON(http.StatusCreated, questions)
}

func (api *questionApi) retrieve(ctx echo.Context) error {
	q, err := api.deps.Questions.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questionApi) update(ctx echo.Context) error {
	var data question.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	q, err := api.deps.Questions.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questionApi) destroy(ctx echo.Context) error {
	if err := api.deps.Questions.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}
