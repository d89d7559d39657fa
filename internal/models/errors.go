package models

import (
	stderrors "errors"
)

// Классы ошибок. Конкретные ошибки оборачиваются через errors.Wrap и проверяются errors.Is.
var (
	ErrValidation    = stderrors.New("validation error")
	ErrProvider      = stderrors.New("external provider error")
	ErrConfiguration = stderrors.New("configuration error")
	ErrNotFound      = stderrors.New("not found")
	ErrStorage       = stderrors.New("storage error")
)

// ErrorKind maps an error to the name of its class for API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrValidation):
		return "validation"
	case stderrors.Is(err, ErrConfiguration):
		return "configuration"
	case stderrors.Is(err, ErrProvider):
		return "provider"
	case stderrors.Is(err, ErrNotFound):
		return "not_found"
	case stderrors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
