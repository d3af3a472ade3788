package service

import "github.com/xhad/docqa/internal/models"

var (
	ErrInvalidInput    = models.ErrInvalidInput
	ErrNotFound        = models.ErrNotFound
	ErrUnsupportedType = models.ErrUnsupportedType
	ErrNoText          = models.ErrNoText
)

// RequestError carries a message fit to show the caller and classifies it
// with one of the sentinel errors.
type RequestError struct {
	Kind    error
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Kind }

func invalid(msg string) error  { return &RequestError{Kind: ErrInvalidInput, Message: msg} }
func notFound(msg string) error { return &RequestError{Kind: ErrNotFound, Message: msg} }
func noText(msg string) error   { return &RequestError{Kind: ErrNoText, Message: msg} }
