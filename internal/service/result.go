package service

import (
	"errors"
	"net/http"

	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

// User-facing messages of the review operations.
const (
	MsgUnauthenticated = "User is not authenticated"
	MsgProductNotFound = "Product not found"
	MsgReviewSaved     = "Review saved successfully"
)

// Result is the tagged outcome of a review operation. Failures never cross
// the service boundary as Go errors; callers branch on Success and render
// Message and Fields.
type Result[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Data    *T                `json:"data,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`

	err *apperrors.AppError
}

// Ok returns a successful result. data may be nil.
func Ok[T any](message string, data *T) Result[T] {
	return Result[T]{Success: true, Message: message, Data: data}
}

// Fail converts err into a failed result. Errors that are not an AppError
// are reported as a failed transaction with their message passed through.
func Fail[T any](err error) Result[T] {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.TransactionFailed(err)
	}
	return Result[T]{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
		Fields:  appErr.Fields,
		err:     appErr,
	}
}

// Err returns the failure cause, or nil for a successful result.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// HTTPStatus maps the result to a response status. created selects 201 for
// successful writes that inserted a row.
func (r Result[T]) HTTPStatus(created bool) int {
	switch {
	case r.Success && created:
		return http.StatusCreated
	case r.Success:
		return http.StatusOK
	default:
		return r.err.Status
	}
}

func unauthenticated() *apperrors.AppError {
	return apperrors.Unauthorized(MsgUnauthenticated)
}

func productNotFound(id string) *apperrors.AppError {
	e := apperrors.NotFound("product", id)
	e.Message = MsgProductNotFound
	return e
}
