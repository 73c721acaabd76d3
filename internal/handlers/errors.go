package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/middleware"
)

// ErrorHandler renders every error as an ErrorResponse. It replaces echo's
// default HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	} else {
		middleware.FromContext(c.Request().Context()).Error("Unhandled error", "error", err)
	}

	resp := ErrorResponse{
		Code:    strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_"),
		Message: message,
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, resp)
	}
	if writeErr != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to write error response", "error", writeErr)
	}
}
