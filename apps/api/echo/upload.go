package echoapi

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/upload"
)

const uploadFilesField = "files"

type uploadApi struct {
	deps Deps
}

func registerUploadAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := uploadApi{deps: deps}

	ug := g.Group("/uploads", jwt, staffMiddleware())
	ug.GET("", api.endpoints)
	ug.POST("/:endpoint", api.upload)
}

// uploadError turns the upload policy errors into validation errors.
func uploadError(err error) error {
	switch errors.Cause(err) {
	case upload.ErrUnknownEndpoint:
		return errHttpNotFound
	case upload.ErrNoFiles, upload.ErrTooManyFiles, upload.ErrTypeNotAllowed, upload.ErrFileTooLarge:
		return core.NewValidationError(err, core.FieldError{Field: uploadFilesField, Error: err.Error()})
	}
	return err
}

func checkUpload(router *upload.Router, endpoint string, fhs []*multipart.FileHeader) error {
	files := make([]upload.File, len(fhs))
	for i, fh := range fhs {
		files[i] = upload.File{Name: fh.Filename, Size: fh.Size}
	}
	return uploadError(router.Check(endpoint, files))
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" && ct != echo.MIMEOctetStream {
		return ct
	}
	if ct := mime.TypeByExtension("." + paper.Extension(fh.Filename)); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}

func (api *uploadApi) endpoints(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.deps.Uploads.Endpoints())
}

func (api *uploadApi) upload(ctx echo.Context) error {
	ep, err := api.deps.Uploads.Endpoint(ctx.Param("endpoint"))
	if err != nil {
		return uploadError(err)
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return core.NewFieldError(uploadFilesField, "a multipart form is required")
	}
	fhs := form.File[uploadFilesField]
	if err := checkUpload(api.deps.Uploads, ep.Name, fhs); err != nil {
		return err
	}

	if ep.Name == upload.StudentImport {
		res, err := importStudents(ctx, api.deps, ctx.FormValue("class_id"), fhs[0])
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, res)
	}

	testID := core.CleanString(ctx.FormValue("test_id"))
	if testID == "" {
		return core.NewFieldError("test_id", "test_id is required")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// the batch is stored as a whole: a failing file discards the ones stored before it
	reqCtx := ctx.Request().Context()
	stored := make([]paper.Paper, 0, len(fhs))
	for _, fh := range fhs {
		p, err := storePaper(reqCtx, api.deps.Papers, paper.NewPaper{
			TestID:      testID,
			StudentID:   core.CleanString(ctx.FormValue("student_id")),
			Kind:        ep.PaperKind,
			Filename:    fh.Filename,
			ContentType: contentType(fh),
			Size:        fh.Size,
			UploadedBy:  claims.Subject,
		}, fh)
		if err != nil {
			api.discard(reqCtx, stored)
			return err
		}
		stored = append(stored, p)
	}

	out := make([]paperResponse, 0, len(stored))
	for _, p := range stored {
		url, err := api.deps.Papers.URL(reqCtx, p, true /* signed */)
		if err != nil {
			return err
		}
		out = append(out, paperResponse{Paper: p, URL: url})
	}
	return ctx.JSON(http.StatusCreated, out)
}

func (api *uploadApi) discard(ctx context.Context, papers []paper.Paper) {
	for _, p := range papers {
		if err := api.deps.Papers.Delete(ctx, p.ID); err != nil {
			api.deps.Logger.Warn(fmt.Sprintf("discarding uploaded paper %s: %v", p.ID, err), err)
		}
	}
}

func storePaper(ctx context.Context, papers *paper.Service, np paper.NewPaper, fh *multipart.FileHeader) (paper.Paper, error) {
	f, err := fh.Open()
	if err != nil {
		return paper.Paper{}, errors.Wrapf(err, "opening %s", fh.Filename)
	}
	defer func() { _ = f.Close() }()

	p, err := papers.Upload(ctx, np, f)
	return p, errors.Wrapf(err, "uploading %s", fh.Filename)
}

// importStudents adds the students of an uploaded roster to a class.
func importStudents(ctx echo.Context, deps Deps, classID string, fh *multipart.FileHeader) (student.ImportResult, error) {
	if err := checkUpload(deps.Uploads, upload.StudentImport, []*multipart.FileHeader{fh}); err != nil {
		return student.ImportResult{}, err
	}
	classID = core.CleanString(classID)
	if classID == "" {
		return student.ImportResult{}, core.NewFieldError("class_id", "class_id is required")
	}
	format, err := core.ParseSheetFormat(fh.Filename)
	if err != nil {
		return student.ImportResult{}, core.NewFieldError(uploadFilesField, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return student.ImportResult{}, errors.Wrapf(err, "opening %s", fh.Filename)
	}
	defer func() { _ = f.Close() }()

	res, err := deps.Students.Import(ctx.Request().Context(), classID, format, f)
	return res, errors.Wrap(err, "importing students")
}
