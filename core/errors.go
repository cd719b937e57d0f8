package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput                = "INGRESS_BAD_INPUT"
	ErrorProviderNotFound        = "INGRESS_PROVIDER_NOT_FOUND"
	ErrorSignatureInvalid        = "INGRESS_SIGNATURE_INVALID"
	ErrorPersistenceFailed       = "INGRESS_PERSISTENCE_FAILED"
	ErrorHookFailed              = "INGRESS_HOOK_FAILED"
	ErrorCredentialRefreshFailed = "INGRESS_CREDENTIAL_REFRESH_FAILED"
	ErrorRateLimited             = "INGRESS_RATE_LIMITED"
	ErrorNotFound                = "INGRESS_NOT_FOUND"
	ErrorConflict                = "INGRESS_CONFLICT"
	ErrorInternal                = "INGRESS_INTERNAL_ERROR"
)

// NewError builds a go-errors envelope whose HTTP status follows the category.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func SignatureError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryAuth, ErrorSignatureInvalid, metadata)
}

func BadInputError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryBadInput, ErrorBadInput, metadata)
}

// MapError converts any error into a go-errors envelope with a status code
// and text code set.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(ErrorSignatureInvalid))
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorProviderNotFound))
	case strings.Contains(msg, "rate limit"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit).WithTextCode(ErrorRateLimited))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorSignatureInvalid
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryConflict:
		return ErrorConflict
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
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
