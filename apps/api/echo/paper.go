package echoapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/paper"
)

type paperApi struct {
	deps Deps
}

type (
	paperResponse struct {
		paper.Paper
		URL string `json:"url"`
	}

	AssignRequest struct {
		StudentID string `json:"student_id" validate:"required"`
	}
)

func registerPaperAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := paperApi{deps: deps}
	staff := staffMiddleware()

	g.GET("/tests/:id/papers", api.listForTest, jwt, staff)

	pg := g.Group("/papers", jwt, staff)
	pg.GET("/:id", api.retrieve)
	pg.GET("/:id/file", api.download)
	pg.PUT("/:id/assign", api.assign)
	pg.DELETE("/:id/assign", api.unassign)
	pg.DELETE("/:id", api.destroy)
}

func (api *paperApi) response(ctx context.Context, p paper.Paper, signed ...bool) (paperResponse, error) {
	url, err := api.deps.Papers.URL(ctx, p, len(signed) == 0 || signed[0])
	if err != nil {
		return paperResponse{}, err
	}
	return paperResponse{Paper: p, URL: url}, nil
}

// signedQuery reads the `signed` query param. URLs are signed unless signed=false.
func signedQuery(ctx echo.Context) (bool, error) {
	raw := ctx.QueryParam("signed")
	if raw == "" {
		return true, nil
	}
	signed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.NewFieldError("signed", "must be true or false")
	}
	return signed, nil
}

func (api *paperApi) listForTest(ctx echo.Context) error {
	var query paper.ListQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to ListQuery")
	}
	if err := query.Validate(api.deps.Validate); err != nil {
		return err
	}
	signed, err := signedQuery(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	papers, err := api.deps.Papers.ListForTest(reqCtx, ctx.Param("id"), query.Kind)
	if err != nil {
		return errors.Wrap(err, "listing papers")
	}
	out := make([]paperResponse, 0, len(papers))
	for _, p := range papers {
		resp, err := api.response(reqCtx, p, signed)
		if err != nil {
			return err
		}
		out = append(out, resp)
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *paperApi) retrieve(ctx echo.Context) error {
	signed, err := signedQuery(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	p, err := api.deps.Papers.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting paper")
	}
	resp, err := api.response(reqCtx, p, signed)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *paperApi) download(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	p, err := api.deps.Papers.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting paper")
	}
	rc, err := api.deps.Papers.Open(reqCtx, p)
	if err != nil {
		return errors.Wrap(err, "opening paper")
	}
	defer func() { _ = rc.Close() }()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+p.Filename+`"`)
	return ctx.Stream(http.StatusOK, p.ContentType, rc)
}

func (api *paperApi) assign(ctx echo.Context) error {
	var data AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	p, err := api.deps.Papers.Assign(reqCtx, ctx.Param("id"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "assigning paper")
	}
	resp, err := api.response(reqCtx, p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *paperApi) unassign(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	p, err := api.deps.Papers.Unassign(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unassigning paper")
	}
	resp, err := api.response(reqCtx, p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *paperApi) destroy(ctx echo.Context) error {
	if err := api.deps.Papers.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting paper")
	}
	return ctx.NoContent(http.StatusNoContent)
}
