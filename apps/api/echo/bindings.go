package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tathmini/core"
)

const (
	orderingParam = "ordering"
	formatParam   = "format"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// sheetFormat reads the `format` query param; csv by default.
func sheetFormat(ctx echo.Context) (core.SheetFormat, error) {
	val := ctx.QueryParam(formatParam)
	if val == "" {
		return core.FormatCSV, nil
	}
	format, err := core.ParseSheetFormat(val)
	if err != nil {
		return "", core.NewFieldError(formatParam, err.Error())
	}
	return format, nil
}

// attachment sets the download headers of a generated file.
func attachment(ctx echo.Context, format core.SheetFormat, name string) {
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, format.ContentType())
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+core.Slugify(name)+"."+string(format)+`"`)
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
