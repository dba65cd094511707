package runtime

import (
	"encoding/json"
	"errors"
	"net/http"
)

// getErrorStatusCode returns the status code for the given error.
func getErrorStatusCode(err error) int {
	for known, status := range wellKnownErrors {
		if errors.Is(err, known) {
			return status
		}
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		if validationErr.Type == validationTypeRequest {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

// newErrorResponse creates a new error response.
func newErrorResponse(err error) Response {
	statusCode := getErrorStatusCode(err)

	type responseError struct {
		Message string   `json:"message"`
		Details []string `json:"details,omitempty"`
	}

	responseErr := responseError{
		Message: err.Error(),
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		responseErr.Details = validationErr.details()
	}

	body, err := json.Marshal(struct {
		Error responseError `json:"error"`
	}{
		Error: responseErr,
	})
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Header: make(http.Header)}
	}

	return newResponse(statusCode, body)
}

// newResponse creates a new response.
func newResponse(status int, body []byte) Response {
	header := make(http.Header)
	header.Add("Content-Type", "application/json")

	return Response{
		StatusCode: status,
		Body:       body,
		Header:     header,
	}
}
