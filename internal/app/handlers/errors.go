package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

type ollamaError struct {
	Error string `json:"error"`
}

type openAIErrorBody struct {
	Code    *string `json:"code"`
	Message string  `json:"message"`
	Type    string  `json:"type"`
}

type openAIError struct {
	Error openAIErrorBody `json:"error"`
}

// writeError answers in the error shape of the client's dialect, so an
// SDK pointed at the gateway can surface the message.
func (a *Application) writeError(w http.ResponseWriter, dialect domain.Dialect, err error) {
	status := domain.StatusCodeForError(err)
	message := errorMessage(err)

	var body any
	switch dialect {
	case domain.DialectOpenAI:
		var code *string
		if c := errorCode(err); c != "" {
			code = &c
		}
		body = openAIError{Error: openAIErrorBody{Message: message, Type: errorType(status), Code: code}}
	default:
		body = ollamaError{Error: message}
	}
	writeJSON(w, status, body)
}

// errorMessage prefers what the backend said when it refused a request,
// because that is what the client can act on.
func errorMessage(err error) string {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) && len(upErr.Body) > 0 {
		body := gjson.ParseBytes(upErr.Body)
		for _, path := range []string{"error.message", "error", "message"} {
			if v := body.Get(path); v.Exists() && v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
		if text := strings.TrimSpace(string(upErr.Body)); text != "" && !gjson.ValidBytes(upErr.Body) {
			return text
		}
	}
	return err.Error()
}

func errorCode(err error) string {
	var (
		capErr   *domain.CapabilityDisabledError
		noneErr  *domain.NoHealthyBackendError
		timeout  *domain.UpstreamTimeoutError
		transErr *domain.TransformationError
		valErr   *domain.ValidationError
	)
	switch {
	case errors.As(err, &noneErr):
		return "no_healthy_backend"
	case errors.As(err, &capErr):
		return "capability_disabled"
	case errors.As(err, &valErr), errors.Is(err, domain.ErrMalformedPayload):
		return "invalid_request"
	case errors.As(err, &timeout):
		return "upstream_timeout"
	case errors.As(err, &transErr):
		if transErr.IsUnsupported() {
			return "unsupported_operation"
		}
		return "transformation_failed"
	case errors.Is(err, domain.ErrFrontendNotFound):
		return "frontend_not_found"
	default:
		return ""
	}
}

func errorType(status int) string {
	switch {
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusRequestTimeout:
		return "timeout_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
