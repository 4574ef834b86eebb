package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Luka0103/studyconnect/auth"
	"github.com/Luka0103/studyconnect/domain"
	"github.com/Luka0103/studyconnect/remote"
)

type errorResponse struct {
	Error  string                  `json:"error"`
	Fields domain.ValidationErrors `json:"fields,omitempty"`
}

// statusFor maps engine errors onto local responses. Anything that is not a
// validation or credential problem is treated as a backend failure.
func statusFor(err error) (int, string) {
	var verrs domain.ValidationErrors
	var rerr *remote.Error
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, auth.ErrNoCredential):
		return http.StatusUnauthorized, err.Error()
	case errors.As(err, &rerr) && rerr.Unauthorized():
		return http.StatusUnauthorized, rerr.Message
	case errors.As(err, &rerr):
		return http.StatusBadGateway, rerr.Message
	}
	return http.StatusBadGateway, err.Error()
}

func writeError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	resp := errorResponse{Error: msg}
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Fields = verrs
	}
	return c.JSON(status, resp)
}
