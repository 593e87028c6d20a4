package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

// downstreamError matches the error envelope written by pkg/httputil.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError turns a non-2xx response into an error, keeping the
// downstream code and message when the body uses the standard envelope.
// The body is consumed and closed.
func ParseResponseError(resp *http.Response, target string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", target, resp.StatusCode, err)
	}

	var de downstreamError
	if json.Unmarshal(body, &de) == nil && de.Error != nil {
		return mapStatus(resp.StatusCode, de.Error.Code, de.Error.Message, target)
	}

	return fmt.Errorf("%s returned status %d: %s", target, resp.StatusCode, body)
}

func mapStatus(status int, code, message, target string) error {
	msg := fmt.Sprintf("%s: %s", target, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(target, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case status == http.StatusGone:
		return apperrors.Gone(msg)
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{Code: code, Message: msg, Status: status, Err: apperrors.ErrServiceUnavail}
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", target, status, code, message)
	default:
		return &apperrors.AppError{Code: code, Message: msg, Status: status}
	}
}
