package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"agent-relay/internal/credential"
	"agent-relay/internal/identity"
	"agent-relay/internal/provider"
	"agent-relay/internal/translator"
)

const (
	errorTypeInvalidRequest     = "InvalidRequest"
	errorTypeUnsupported        = "UnsupportedProvider"
	errorTypeNotConfigured      = "NotConfigured"
	errorTypeInvalidCredential  = "InvalidCredentialFormat"
	errorTypeUpstream           = "UpstreamError"
	errorTypeUpstreamTimeout    = "UpstreamTimeout"
	errorTypeBackendUnavailable = "BackendUnavailable"
	errorTypeRateLimited        = "RateLimited"
	errorTypeHTTP               = "HTTPError"
)

type requestError struct {
	Status         int
	Message        string
	Type           string
	UpstreamStatus int
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error          string `json:"error"`
	ErrorType      string `json:"errorType"`
	Timestamp      string `json:"timestamp"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

func writeError(c echo.Context, e requestError) error {
	return c.JSON(e.Status, errorBody{
		Error:          e.Message,
		ErrorType:      e.Type,
		Timestamp:      translator.FormatTimestamp(time.Now()),
		UpstreamStatus: e.UpstreamStatus,
	})
}

func relayErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		slog.WarnContext(c.Request().Context(), "error after response was committed", "err", err)
		return
	}

	reqErr := toRequestError(err)
	if reqErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed", "status", reqErr.Status, "type", reqErr.Type, "err", err)
	}
	_ = writeError(c, reqErr)
}

// toRequestError maps a failure to its HTTP status and error type.
func toRequestError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var notConfigured *credential.NotConfiguredError
	if errors.As(err, &notConfigured) {
		return requestError{Status: http.StatusBadRequest, Message: notConfigured.Error(), Type: errorTypeNotConfigured}
	}

	var upstreamErr *provider.UpstreamError
	if errors.As(err, &upstreamErr) {
		return requestError{
			Status:         http.StatusBadGateway,
			Message:        upstreamErr.Error(),
			Type:           errorTypeUpstream,
			UpstreamStatus: upstreamErr.Status,
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return requestError{Status: httpErr.Code, Message: fmt.Sprint(httpErr.Message), Type: errorTypeHTTP}
	}

	switch {
	case errors.Is(err, translator.ErrInvalidRequest):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: errorTypeInvalidRequest}
	case errors.Is(err, provider.ErrUnsupportedProvider):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: errorTypeUnsupported}
	case errors.Is(err, provider.ErrInvalidCredentialFormat):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: errorTypeInvalidCredential}
	case errors.Is(err, credential.ErrBackendUnavailable), errors.Is(err, identity.ErrBackendUnavailable):
		return requestError{Status: http.StatusServiceUnavailable, Message: err.Error(), Type: errorTypeBackendUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return requestError{Status: http.StatusGatewayTimeout, Message: err.Error(), Type: errorTypeUpstreamTimeout}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Type:    fmt.Sprintf("%T", err),
	}
}
