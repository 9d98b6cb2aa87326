package errors

import (
	"net/http"

	"github.com/tixgo/tix-booking/pkg/status"
)

// AppError carries the HTTP status code and machine readable status alongside
// the message, so handlers can translate any error from the use case layer
// into a response envelope without switching on error types.
type AppError struct {
	HTTPStatusCode int
	Status         string
	Message        string
}

func (e *AppError) Error() string {
	return e.Message
}

func New(httpStatusCode int, status string, message string) error {
	return &AppError{
		HTTPStatusCode: httpStatusCode,
		Status:         status,
		Message:        message,
	}
}

// Destruct unpacks err into an AppError. Errors that did not originate from
// this package are masked as internal server errors.
func Destruct(err error) *AppError {
	if ae, ok := err.(*AppError); ok {
		return ae
	}

	return &AppError{
		HTTPStatusCode: http.StatusInternalServerError,
		Status:         status.INTERNAL_SERVER_ERROR,
		Message:        "internal server error",
	}
}
