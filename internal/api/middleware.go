package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"conference-central/internal/domain"
)

// ContentEncodingMiddleware unwraps request bodies sent with
// Content-Encoding gzip. Bodies in any other encoding than gzip or identity
// are refused with 415.
func ContentEncodingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch requestEncoding(req.Header.Values(echo.HeaderContentEncoding)) {
			case "", "identity":
				return next(c)
			case "gzip":
			default:
				return c.JSON(http.StatusUnsupportedMediaType, errorResponse{
					Error: "unsupported content encoding",
					Code:  string(domain.CodeInvalidArgument),
				})
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{
					Error: "invalid gzip body",
					Code:  string(domain.CodeInvalidArgument),
				})
			}
			req.Body = inflatedBody{zr: zr, raw: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// requestEncoding collapses the Content-Encoding values to one coding.
// Stacked codings other than identity are reported as unsupported.
func requestEncoding(values []string) string {
	var codings []string
	for _, v := range values {
		for _, enc := range strings.Split(v, ",") {
			enc = strings.ToLower(strings.TrimSpace(enc))
			if enc != "" && enc != "identity" {
				codings = append(codings, enc)
			}
		}
	}
	switch len(codings) {
	case 0:
		return ""
	case 1:
		return codings[0]
	}
	return strings.Join(codings, ",")
}

type inflatedBody struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (b inflatedBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b inflatedBody) Close() error {
	zerr := b.zr.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}
