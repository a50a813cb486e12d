package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"promptpilot/internal/filestore"
	"promptpilot/internal/provider"
	"promptpilot/internal/router"
)

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		_ = writeError(c, he.Code, message, "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps routing failures onto client-facing errors.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, router.ErrNoMessages) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}
	if errors.Is(err, provider.ErrUnknownProvider) {
		slog.Error("no adapter registered", "err", err)
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "provider is not configured",
			Type:    "server_error",
		}
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: apiErr.Error(),
			Type:    "upstream_error",
		}
	}

	slog.Error("upstream request failed", "err", err)
	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}

func storeError(err error) error {
	if errors.Is(err, filestore.ErrNotFound) {
		return requestError{
			Status:  http.StatusNotFound,
			Message: err.Error(),
			Type:    "not_found_error",
		}
	}

	slog.Error("file operation failed", "err", err)
	return requestError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Type:    "server_error",
	}
}
