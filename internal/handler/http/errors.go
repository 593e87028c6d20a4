package http

import (
	"errors"
	"net/http"

	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

func invalidBody(err error) *apperrors.AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.InvalidInput("request body too large")
	}
	return apperrors.InvalidInput("invalid request body: " + err.Error())
}
