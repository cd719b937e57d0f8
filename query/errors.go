package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func queryNotFoundError(key core.EntityKey) error {
	return goerrors.New("query: entity not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ErrorNotFound).
		WithMetadata(map[string]any{
			"tenant_id":   key.TenantID,
			"collection":  key.Collection,
			"external_id": key.ExternalID,
		})
}
