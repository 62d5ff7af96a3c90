package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BookingErrorBadInput          = "BOOKING_BAD_INPUT"
	BookingErrorAuthenticity      = "BOOKING_AUTHENTICITY"
	BookingErrorSignatureMismatch = "BOOKING_SIGNATURE_MISMATCH"
	BookingErrorNormalization     = "BOOKING_NORMALIZATION"
	BookingErrorDuplicateEvent    = "BOOKING_DUPLICATE_EVENT"
	BookingErrorNotFound          = "BOOKING_NOT_FOUND"
	BookingErrorProviderNotFound  = "BOOKING_PROVIDER_NOT_FOUND"
	BookingErrorConcurrentUpdate  = "BOOKING_CONCURRENT_UPDATE"
	BookingErrorProcessingTimeout = "BOOKING_PROCESSING_TIMEOUT"
	BookingErrorDeliveryFailed    = "BOOKING_NOTIFICATION_DELIVERY_FAILED"
	BookingErrorInternal          = "BOOKING_INTERNAL_ERROR"
)

// NewAuthenticityError reports that a signature could not be checked at all,
// typically because the provider secret is not configured.
func NewAuthenticityError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryInternal, http.StatusInternalServerError, BookingErrorAuthenticity, metadata)
}

// NewSignatureMismatchError is the request-level rejection for a payload whose
// signature did not verify.
func NewSignatureMismatchError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryAuth, http.StatusUnauthorized, BookingErrorSignatureMismatch, metadata)
}

func NewNormalizationError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryValidation, http.StatusUnprocessableEntity, BookingErrorNormalization, metadata)
}

func NewDuplicateKeyError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryConflict, http.StatusOK, BookingErrorDuplicateEvent, metadata)
}

func NewBookingNotFoundError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryNotFound, http.StatusConflict, BookingErrorNotFound, metadata)
}

func NewProviderNotFoundError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryNotFound, http.StatusNotFound, BookingErrorProviderNotFound, metadata)
}

func NewConcurrentUpdateError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryConflict, http.StatusConflict, BookingErrorConcurrentUpdate, metadata)
}

func NewProcessingTimeoutError(source error, metadata map[string]any) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryOperation, "core: processing budget exceeded").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(BookingErrorProcessingTimeout)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewBadInputError(message string, metadata map[string]any) *goerrors.Error {
	return newBookingError(message, goerrors.CategoryBadInput, http.StatusBadRequest, BookingErrorBadInput, metadata)
}

func IsAuthenticityError(err error) bool      { return hasTextCode(err, BookingErrorAuthenticity) }
func IsSignatureMismatchError(err error) bool { return hasTextCode(err, BookingErrorSignatureMismatch) }
func IsNormalizationError(err error) bool     { return hasTextCode(err, BookingErrorNormalization) }
func IsDuplicateKeyError(err error) bool      { return hasTextCode(err, BookingErrorDuplicateEvent) }
func IsBookingNotFoundError(err error) bool   { return hasTextCode(err, BookingErrorNotFound) }
func IsProviderNotFoundError(err error) bool  { return hasTextCode(err, BookingErrorProviderNotFound) }
func IsConcurrentUpdateError(err error) bool  { return hasTextCode(err, BookingErrorConcurrentUpdate) }
func IsProcessingTimeoutError(err error) bool { return hasTextCode(err, BookingErrorProcessingTimeout) }
func IsBadInputError(err error) bool          { return hasTextCode(err, BookingErrorBadInput) }

// HTTPStatus resolves the response status a webhook caller should see for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := bookingErrorMapper(err)
	if mapped == nil || mapped.Code == 0 {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

func hasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = rich.Source
	}
	return false
}

func newBookingError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func bookingErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBookingErrorEnvelope(richErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProcessingTimeoutError(err, nil)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return NewProviderNotFoundError(err.Error(), nil)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return NewBadInputError(err.Error(), nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBookingErrorEnvelope(mapped)
}

func ensureBookingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bookingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBookingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBookingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BookingErrorBadInput
	case goerrors.CategoryNotFound:
		return BookingErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BookingErrorSignatureMismatch
	case goerrors.CategoryConflict:
		return BookingErrorConcurrentUpdate
	case goerrors.CategoryExternal:
		return BookingErrorDeliveryFailed
	default:
		return BookingErrorInternal
	}
}

func bookingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
