package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Response is the error body returned by the library REST API.
type Response struct {
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
	Path      string `json:"path,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Errors    []struct {
		Field         string `json:"field"`
		Message       string `json:"message"`
		RejectedValue any    `json:"rejectedValue,omitempty"`
	} `json:"errors,omitempty"`
}

// ParseResponse decodes an error body. Bodies that are not JSON produce a
// Response carrying only a generic message.
func ParseResponse(status int, body []byte) Response {
	var resp Response
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil {
		resp = Response{
			ErrorCode: string(KindUnknown),
			Message:   fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
		}
	}
	return resp
}

// FromResponse classifies a non-2xx response.
func FromResponse(status int, resp Response) error {
	message := resp.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}

	var err *goerrors.Error
	switch {
	case status == http.StatusUnauthorized:
		err = New(KindUnauthorized, message)
	case status == http.StatusForbidden:
		err = New(KindForbidden, message)
	case status == http.StatusNotFound:
		err = New(KindNotFound, message)
	case status == http.StatusConflict:
		err = New(KindConflict, message)
	case status >= http.StatusInternalServerError:
		err = New(KindServer, message)
	case status == http.StatusBadRequest || len(resp.Errors) > 0:
		fields := make([]FieldError, 0, len(resp.Errors))
		for _, f := range resp.Errors {
			fields = append(fields, FieldError{Field: f.Field, Message: f.Message, Value: f.RejectedValue})
		}
		err = Validation(message, fields...)
	default:
		err = New(KindUnknown, message)
	}

	err = err.WithCode(status)
	if resp.ErrorCode != "" || resp.Path != "" {
		err = err.WithMetadata(map[string]any{
			"error_code": resp.ErrorCode,
			"path":       resp.Path,
		})
	}

	return err
}
