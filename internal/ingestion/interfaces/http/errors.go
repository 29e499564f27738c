// Package http provides the HTTP surface for the ingestion core: the two
// endpoints named in §6, their middleware chain, and the wire-shape error
// mapping that keeps every response byte-for-byte what §6 specifies.
package http

import (
	"net/http"

	"github.com/originsignal/ingestion/internal/ingestion/application/dto"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
)

// classifyError turns any error the application layer can return into the
// exact status code and body §6 names for it. There is no generic envelope
// here on purpose: auth errors, validation errors, and processing errors
// each have their own shape and the three must not be conflated.
func classifyError(err error) (int, interface{}) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError, dto.ProcessingErrorResponse{
			Success: false,
			Error:   "Failed to process event",
		}
	}

	switch appErr.Code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeBadRequest:
		return http.StatusBadRequest, dto.ValidationErrorResponse{
			Success: false,
			Errors:  fieldErrors(appErr),
		}

	case apperrors.ErrCodeIPNotAllowed, apperrors.ErrCodeForbidden, apperrors.ErrCodeWebsiteSuspended:
		return http.StatusForbidden, dto.AuthErrorResponse{
			Error:   "Forbidden",
			Message: appErr.Message,
		}

	case apperrors.ErrCodeTokenMalformed, apperrors.ErrCodeTokenExpired, apperrors.ErrCodeTokenRevoked,
		apperrors.ErrCodeTokenInvalid, apperrors.ErrCodeUnauthorized, apperrors.ErrCodeWebsiteNotFound:
		return http.StatusUnauthorized, dto.AuthErrorResponse{
			Error:   "Unauthorized",
			Message: appErr.Message,
		}

	case apperrors.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests, dto.AuthErrorResponse{
			Error:   "Too Many Requests",
			Message: appErr.Message,
		}

	default:
		return http.StatusInternalServerError, dto.ProcessingErrorResponse{
			Success: false,
			Error:   "Failed to process event",
		}
	}
}

// fieldErrors flattens AppError.Fields into §6's { field: [msg, ...] }
// shape. The validator only ever produces one message per field, but the
// wire shape is an array so a future multi-message field stays compatible.
func fieldErrors(appErr *apperrors.AppError) map[string][]string {
	if len(appErr.Fields) == 0 {
		return map[string][]string{"_": {appErr.Message}}
	}
	out := make(map[string][]string, len(appErr.Fields))
	for field, msg := range appErr.Fields {
		out[field] = []string{msg}
	}
	return out
}
