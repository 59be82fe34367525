package transport

import (
	"errors"

	"github.com/rhuss/ember/pkg/api"
)

// StatusFromError maps a handler error to a response status. *api.Error
// keeps its own status; everything else is a server error.
func StatusFromError(err error) api.Status {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status.Valid() {
		return apiErr.Status
	}
	return api.StatusInternalServerError
}

// ErrorResponse is the default exception handler. Client errors carry
// their message. Server errors include the error text unless production
// is set, in which case a generic message is returned.
func ErrorResponse(err error, production bool) *api.Response {
	status := StatusFromError(err)
	if status != api.StatusInternalServerError {
		var apiErr *api.Error
		errors.As(err, &apiErr)
		return api.Text(apiErr.Message, status)
	}
	if production {
		return api.Text("Internal server error.", status)
	}
	return api.Text("Internal server error: "+err.Error(), status)
}
