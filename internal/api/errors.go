package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmgilman/oceanctl/internal/validate"
)

// Sentinel errors for the remote service.
var (
	// ErrNetwork indicates the request produced no response.
	ErrNetwork = errors.New("network error")

	// ErrServer matches every non-2xx response.
	ErrServer = errors.New("server error")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")
)

// ServerError is a non-2xx response from the service.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

// Is matches ErrServer for every status and the narrower sentinels for their
// status codes.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrServer:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Kind classifies an error for presentation.
type Kind string

const (
	KindNone         Kind = ""
	KindValidation   Kind = "validation"
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindUnknown      Kind = "unknown"
)

// KindOf returns the class of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, validate.ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrServer):
		return KindServer
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// errorBody covers the error shapes the service produces: FastAPI's
// {"detail": "..."} or {"detail": [{"msg": ...}]}, and {"code", "message"}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func mapError(status int, body []byte) error {
	se := &ServerError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		se.Message = strings.TrimSpace(string(body))
		return se
	}

	se.Code = eb.Code
	switch {
	case eb.Message != "":
		se.Message = eb.Message
	case eb.Error != "":
		se.Message = eb.Error
	case len(eb.Detail) > 0:
		se.Message = detailMessage(eb.Detail)
	}
	return se
}

func detailMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return string(raw)
	}

	msgs := make([]string, 0, len(items))
	for _, it := range items {
		if len(it.Loc) > 0 {
			msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			continue
		}
		msgs = append(msgs, it.Msg)
	}
	return strings.Join(msgs, "; ")
}
