package echoapi

import (
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

// registerFileAPI serves the files of the local storage. Access is granted by the URL signature.
func registerFileAPI(g *echo.Group, files FileServer) {
	g.GET("/files/*", func(ctx echo.Context) error {
		if files == nil {
			return errHttpNotFound
		}
		key, err := url.PathUnescape(ctx.Param("*"))
		if err != nil || key == "" {
			return errHttpNotFound
		}
		if err := files.Verify(key, ctx.QueryParam("expires"), ctx.QueryParam("signature")); err != nil {
			return errHttpForbidden
		}

		rc, err := files.Open(ctx.Request().Context(), key)
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "opening file")
		}
		defer func() { _ = rc.Close() }()

		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		return ctx.Stream(http.StatusOK, ct, rc)
	})
}
