package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Error original (causa), útil para logs, no se expone al cliente
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// FromError intenta convertir un error genérico en un AppError.
// Si no es un AppError, devuelve un error interno genérico conservando el
// error original.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail agrega detalles adicionales al error.
// Devuelve una COPIA del error para no mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega el error original (causa).
// Devuelve una COPIA del error.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	// 400
	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "invalid request")

	// 401 — genérico a propósito: nunca revelar por qué falló la
	// autenticación (anti-oracle). El detalle queda en logs server-side.
	ErrAuthRequired = New(http.StatusUnauthorized, "auth_required", "authentication required")

	// 403
	ErrForbidden = New(http.StatusForbidden, "forbidden", "insufficient role")

	// 405
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")

	// 429
	ErrRateLimited = New(http.StatusTooManyRequests, "rate_limited", "too many requests")

	// 500
	ErrInternalServerError = New(http.StatusInternalServerError, "internal_error", "internal server error")

	// 503 — reservado para el flag de mantenimiento
	ErrMaintenance = New(http.StatusServiceUnavailable, "maintenance", "service under maintenance")
)
