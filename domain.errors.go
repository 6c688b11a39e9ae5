package main

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidID            = errors.New("id provided is not valid")
	ErrUnsupportedMediaType = errors.New("unsupported media type: expecting application/json")
	ErrInvalidJSON          = errors.New("request body is not a valid json object")

	ErrBookNotFound     = errors.New("book not found")
	ErrRatingNotFound   = errors.New("rating not found")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrBookNotInLibrary = errors.New("book is not available in the library")

	ErrDuplicateISBN     = errors.New("a book with this ISBN already exists")
	ErrISBNAlreadyOnLoan = errors.New("a book with this ISBN is already on loan")
	ErrMemberLoanLimit   = errors.New("member already has the maximum number of active loans")

	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrJournalDisabled     = errors.New("change journal is not enabled")
)

type (
	missingFieldError    string
	unexpectedFieldError string
)

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

func (u unexpectedFieldError) Error() string {
	return string(u) + " is not a supported field"
}

// invalidFieldError reports a field present with an unacceptable value.
type invalidFieldError struct {
	field  string
	reason string
}

func (i *invalidFieldError) Error() string {
	return i.field + " " + i.reason
}

func invalidField(field, reason string) error {
	return &invalidFieldError{field: field, reason: reason}
}

// IsValidationError reports whether err is caused by a malformed payload or query.
func IsValidationError(err error) bool {
	var m missingFieldError
	var u unexpectedFieldError
	var i *invalidFieldError
	return errors.As(err, &m) || errors.As(err, &u) || errors.As(err, &i)
}

// IsConflictError reports whether err is a refusal caused by existing records.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateISBN) ||
		errors.Is(err, ErrISBNAlreadyOnLoan) ||
		errors.Is(err, ErrMemberLoanLimit)
}

// IsNotFoundError reports whether err means the requested record does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrRatingNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrBookNotInLibrary) ||
		errors.Is(err, ErrJournalDisabled)
}

// StatusFromError maps an operation failure to the http status sent to clients.
// Conflicts share the validation status code.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	case IsValidationError(err), IsConflictError(err):
		return http.StatusUnprocessableEntity
	case IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
