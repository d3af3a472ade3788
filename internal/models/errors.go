package models

import "errors"

var (
	// ErrInvalidInput indicates malformed or missing request input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a document or stored file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedType indicates a file format with no extractor.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrNoText indicates extraction succeeded but produced no readable text.
	ErrNoText = errors.New("no readable text")
)
