package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrite_SetsContentTypeAndStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/bogus", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusNotFound, TypeNotFound, "Not Found", ErrNotFound, "test")

	if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("expected problem+json content type, got %s", got)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Type != TypeNotFound {
		t.Errorf("expected type %s, got %s", TypeNotFound, body.Type)
	}
	if body.Instance != "/api/v1/verifications/bogus" {
		t.Errorf("expected instance from request path, got %s", body.Instance)
	}
}

func TestWrite_DetailRedactedInProduction(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusInternalServerError, TypeInternal, "Internal Error",
		errors.New("pgx: connection refused to 10.0.0.5"), "production")

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Detail != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("production detail should be generic, got %q", body.Detail)
	}
}

func TestWrite_ValidationErrorsIncluded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusUnprocessableEntity, TypeValidation, "Validation Failed",
		errors.New("invalid request"), "test",
		WithErrors(map[string]interface{}{"identifier": "required"}))

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Errors["identifier"] != "required" {
		t.Errorf("expected field error map, got %v", body.Errors)
	}
}
