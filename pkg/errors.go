package pkg

import (
	"errors"
	"fmt"
)

var (
	ErrBusy             = errors.New("backend is busy, try again later")
	ErrNoBackend        = errors.New("no such backend")
	ErrUnsupportedImage = errors.New("unsupported image type, expect jpg, jpeg or png")
	ErrTooLarge         = errors.New("image is too large")
)

// StatusError is returned when the model server answers with anything but 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error: %d - %s", e.Code, e.Body)
}

// ParseError is returned when the whole response body is not the expected JSON document.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RawBody returns the upstream body carried by err, if any.
func RawBody(err error) (string, bool) {
	var (
		se *StatusError
		pe *ParseError
	)
	switch {
	case errors.As(err, &se):
		return se.Body, true
	case errors.As(err, &pe):
		return pe.Raw, true
	}
	return "", false
}

// StatusCode returns the upstream http code carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
