package flexi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidLimit is returned when a list limit is not a positive integer.
var ErrInvalidLimit = errors.New("flexi: limit must be a positive integer")

// GatewayError is returned when the server answers with a non-2xx status.
type GatewayError struct {
	Status     int
	StatusText string
	URL        string
	// Body is the raw response body
	Body string
	// Message is winstrom.message when the body carried one
	Message string
	// Details is the decoded body, when it was JSON
	Details any
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Flexi API error %d %s", e.Status, e.StatusText)
}

// NotFoundError is synthesized when a get-by-id returns no rows. The server
// reports that case as an empty success response, not as a 404.
type NotFoundError struct {
	Evidence string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Record not found: %s/%s", e.Evidence, e.ID)
}

// TransportError covers unreachable servers and unreadable or malformed
// responses.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flexi: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusOf maps a gateway error to the HTTP status the API should answer with.
func StatusOf(err error) int {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Status
	}
	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidLimit) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
