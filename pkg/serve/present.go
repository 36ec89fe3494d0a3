package serve

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yylt/ocrmux/pkg"
)

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Present turns the recognized text into the single line shown to the user.
func Present(text string) string {
	return flatten.Replace(text)
}

// httpStatus maps a recognition error; anything not caused by the caller is an upstream failure.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pkg.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, pkg.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pkg.ErrNoBackend), errors.Is(err, pkg.ErrUnsupportedImage):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
