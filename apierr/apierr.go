// Package apierr classifies failures of remote calls into the small taxonomy
// callers act on. Classified errors are *goerrors.Error values whose text code
// carries the Kind.
package apierr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Kind is the classification of a failed call.
type Kind string

const (
	KindNetwork      Kind = "NETWORK_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindServer       Kind = "SERVER_ERROR"
	KindUnknown      Kind = "UNKNOWN_ERROR"
)

// FieldError is a single field-level validation message.
type FieldError = goerrors.FieldError

var categories = map[Kind]goerrors.Category{
	KindNetwork:      goerrors.CategoryExternal,
	KindUnauthorized: goerrors.CategoryAuth,
	KindForbidden:    goerrors.CategoryAuthz,
	KindNotFound:     goerrors.CategoryNotFound,
	KindConflict:     goerrors.CategoryConflict,
	KindValidation:   goerrors.CategoryValidation,
	KindServer:       goerrors.CategoryExternal,
	KindUnknown:      goerrors.CategoryInternal,
}

var statuses = map[Kind]int{
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindValidation:   http.StatusBadRequest,
	KindServer:       http.StatusInternalServerError,
}

func categoryOf(kind Kind) goerrors.Category {
	if c, ok := categories[kind]; ok {
		return c
	}
	return goerrors.CategoryInternal
}

// New creates a classified error.
func New(kind Kind, message string) *goerrors.Error {
	err := goerrors.New(message, categoryOf(kind)).WithTextCode(string(kind))
	if code, ok := statuses[kind]; ok {
		err = err.WithCode(code)
	}
	return err
}

// Wrap classifies source under kind.
func Wrap(source error, kind Kind, message string) *goerrors.Error {
	err := goerrors.Wrap(source, categoryOf(kind), message).WithTextCode(string(kind))
	if code, ok := statuses[kind]; ok {
		err = err.WithCode(code)
	}
	return err
}

// Network classifies a transport-level failure (DNS, refused, timeout).
func Network(source error, url string) *goerrors.Error {
	return Wrap(source, KindNetwork, "server unreachable").
		WithMetadata(map[string]any{"url": url})
}

// Validation creates a validation failure carrying field-level messages.
func Validation(message string, fields ...FieldError) *goerrors.Error {
	if message == "" {
		message = "validation failed"
	}
	return goerrors.NewValidation(message, fields...).
		WithTextCode(string(KindValidation)).
		WithCode(http.StatusBadRequest)
}

// KindOf returns the classification of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var classified *goerrors.Error
	if errors.As(err, &classified) && classified.TextCode != "" {
		return Kind(classified.TextCode)
	}

	if isNetwork(err) {
		return KindNetwork
	}

	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status returns the HTTP status attached to err, or 0.
func Status(err error) int {
	var classified *goerrors.Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return 0
}

// Fields returns the field-level messages of a validation failure.
func Fields(err error) []FieldError {
	var classified *goerrors.Error
	if errors.As(err, &classified) {
		return classified.ValidationErrors
	}
	return nil
}

// IsRetryable reports whether retrying the same call may succeed.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindServer:
		return true
	default:
		return false
	}
}

// IsAuth reports whether err needs a new identity to resolve.
func IsAuth(err error) bool {
	switch KindOf(err) {
	case KindUnauthorized, KindForbidden:
		return true
	default:
		return false
	}
}

// Classify returns err unchanged when already classified and wraps it otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *goerrors.Error
	if errors.As(err, &classified) && classified.TextCode != "" {
		return err
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return FromValidation(verrs)
	}

	if isNetwork(err) {
		return Wrap(err, KindNetwork, "server unreachable")
	}

	return Wrap(err, KindUnknown, err.Error())
}

// FromValidation converts ozzo validation errors to a validation failure.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return Wrap(err, KindUnknown, "validation could not run")
		}
		return Validation(err.Error())
	}

	names := make([]string, 0, len(verrs))
	for name := range verrs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]FieldError, 0, len(names))
	for _, name := range names {
		fields = append(fields, FieldError{Field: name, Message: verrs[name].Error()})
	}

	return Validation("invalid request", fields...)
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
