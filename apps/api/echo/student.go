package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/student"
)

const importFileField = "file"

type studentApi struct {
	deps Deps
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := studentApi{deps: deps}
	staff := staffMiddleware()

	sg := g.Group("/students", jwt, staff)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/template", api.template)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy, adminMiddleware())

	// class rosters
	g.GET("/classes/:id/students/export", api.export, jwt, staff)
	g.POST("/classes/:id/students/import", api.importSheet, jwt, staff)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	std, err := api.deps.Students.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.deps.Students.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.deps.Students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	std, err := api.deps.Students.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.deps.Students.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) template(ctx echo.Context) error {
	format, err := sheetFormat(ctx)
	if err != nil {
		return err
	}
	data, err := student.Template(format)
	if err != nil {
		return errors.Wrap(err, "generating import template")
	}
	attachment(ctx, format, "students-template")
	return ctx.Blob(http.StatusOK, format.ContentType(), data)
}

func (api *studentApi) export(ctx echo.Context) error {
	format, err := sheetFormat(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	cls, err := api.deps.Classes.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class")
	}

	var buf bytes.Buffer
	if err := api.deps.Students.ExportRoster(reqCtx, cls.ID, format, &buf); err != nil {
		return errors.Wrap(err, "exporting roster")
	}
	attachment(ctx, format, cls.Name+"-students")
	return ctx.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (api *studentApi) importSheet(ctx echo.Context) error {
	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return core.NewFieldError(importFileField, "a csv or xlsx file is required")
	}
	res, err := importStudents(ctx, api.deps, ctx.Param("id"), fh)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
