package api

import (
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// maxInflatedBody caps a decoded request body. Task drafts and patches are a
// few hundred bytes.
const maxInflatedBody = 1 << 20

type bodyDecoder func(io.Reader) (io.ReadCloser, error)

var bodyDecoders = map[string]bodyDecoder{
	"gzip":    func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	"x-gzip":  func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	"deflate": func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) },
}

// ContentDecodingMiddleware undoes the Content-Encoding of a request body
// before it reaches the JSON decoder. Codings are removed in reverse order of
// the header. An unknown coding is answered with 415 and a body that does not
// decode with 400.
func ContentDecodingMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			codings := contentCodings(req.Header.Get(echo.HeaderContentEncoding))
			if req.Body == nil || len(codings) == 0 {
				return next(c)
			}

			body := &decodedBody{raw: req.Body}
			var r io.Reader = req.Body
			for i := len(codings) - 1; i >= 0; i-- {
				dec, ok := bodyDecoders[codings[i]]
				if !ok {
					_ = body.Close()
					logger.WithField("encoding", codings[i]).Warn("api.decode: unsupported content encoding")
					return c.JSON(http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported content encoding " + codings[i]})
				}
				rc, err := dec(r)
				if err != nil {
					_ = body.Close()
					logger.WithError(err).WithField("encoding", codings[i]).Debug("api.decode: invalid body")
					return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid " + codings[i] + " body"})
				}
				body.layers = append(body.layers, rc)
				r = rc
			}

			body.Reader = http.MaxBytesReader(c.Response(), io.NopCloser(r), maxInflatedBody)
			req.Body = body
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// contentCodings lists the codings of a Content-Encoding header in lower case,
// dropping identity.
func contentCodings(header string) []string {
	var out []string
	for _, enc := range strings.Split(header, ",") {
		enc = strings.ToLower(strings.TrimSpace(enc))
		if enc == "" || enc == "identity" {
			continue
		}
		out = append(out, enc)
	}
	return out
}

// decodedBody closes every decoding layer, innermost last, then the raw body.
type decodedBody struct {
	io.Reader
	layers []io.Closer
	raw    io.Closer
}

func (b *decodedBody) Close() error {
	var err error
	for i := len(b.layers) - 1; i >= 0; i-- {
		if cerr := b.layers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
