// Package validate implements the request validation pipe: JSON bodies are
// decoded strictly (unknown fields rejected) and struct-validated with
// go-playground/validator. Any failure maps to HTTP 422 with a per-field
// error breakdown.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/verisend/server/internal/api/problem"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequestError carries the field-level detail of a failed decode or
// validation, suitable for rendering as a problem response.
type RequestError struct {
	Fields map[string]interface{}
	err    error
}

func (e *RequestError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return "invalid request body"
}

func (e *RequestError) Unwrap() error { return e.err }

// DecodeJSON reads and validates a JSON request body into dst.
// dst must be a pointer to a struct with `validate` tags.
func DecodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return &RequestError{Fields: decodeErrorFields(err), err: err}
	}

	// Reject trailing garbage after the JSON document.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &RequestError{
			Fields: map[string]interface{}{"body": "must contain a single JSON object"},
			err:    fmt.Errorf("unexpected content after JSON body"),
		}
	}

	if err := validate.Struct(dst); err != nil {
		return &RequestError{Fields: validationErrorFields(err), err: err}
	}
	return nil
}

// WriteError renders a RequestError (or any error) as a 422 problem.
func WriteError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation,
			"Validation Failed", err, env, problem.WithErrors(reqErr.Fields))
		return
	}
	problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation,
		"Validation Failed", err, env)
}

func decodeErrorFields(err error) map[string]interface{} {
	fields := map[string]interface{}{}

	var unmarshalErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &unmarshalErr):
		field := unmarshalErr.Field
		if field == "" {
			field = "body"
		}
		fields[field] = fmt.Sprintf("must be of type %s", unmarshalErr.Type)
	case errors.As(err, &syntaxErr):
		fields["body"] = "malformed JSON"
	case errors.Is(err, io.EOF):
		fields["body"] = "request body is required"
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		fields[unknownFieldName(err)] = "unknown field"
	default:
		fields["body"] = "invalid JSON"
	}
	return fields
}

func validationErrorFields(err error) map[string]interface{} {
	fields := map[string]interface{}{}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		fields["body"] = "validation failed"
		return fields
	}

	for _, fieldErr := range validationErrs {
		name := strings.ToLower(fieldErr.Field())
		if fieldErr.Param() != "" {
			fields[name] = fmt.Sprintf("failed %s=%s constraint", fieldErr.Tag(), fieldErr.Param())
		} else {
			fields[name] = fmt.Sprintf("failed %s constraint", fieldErr.Tag())
		}
	}
	return fields
}

// unknownFieldName extracts the field name from the stdlib's
// `json: unknown field "xyz"` error text. There is no structured error
// for this case.
func unknownFieldName(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	end := strings.LastIndex(msg, `"`)
	if start >= 0 && end > start {
		return msg[start+1 : end]
	}
	return "body"
}
