package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// HTTPError is the JSON error body returned to callers.
type HTTPError struct {
	StatusCode int    `json:"statusCode"`
	ErrorText  string `json:"error"`
	Message    string `json:"message"`
}

// Render writes err as a JSON error response. Structured errors keep their
// message; anything else becomes a generic 500 so internal details never
// reach clients.
func Render(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	message := "An internal server error occurred"

	var e *Error
	if errors.As(err, &e) && status < http.StatusInternalServerError {
		message = e.Message
	}

	render.Status(r, status)
	render.JSON(w, r, HTTPError{
		StatusCode: status,
		ErrorText:  http.StatusText(status),
		Message:    message,
	})
}
