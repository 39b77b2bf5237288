package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRetryJobWithoutQueue(t *testing.T) {
	handler := NewQueuesHandler(nil, nil, "test", nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/queues/jobs/42/retry", nil)
	r.SetPathValue("id", "42")
	w := httptest.NewRecorder()

	handler.RetryJob(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when no river client is wired", w.Code)
	}
}

func TestJobIDValidation(t *testing.T) {
	handler := NewQueuesHandler(nil, nil, "test", nil, nil)

	tests := []struct {
		name string
		id   string
	}{
		{"not a number", "abc"},
		{"zero", "0"},
		{"negative", "-3"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/queues/jobs/x/cancel", nil)
			r.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()

			if _, ok := handler.jobID(w, r); ok {
				t.Fatal("expected invalid job id to be rejected")
			}
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", w.Code)
			}
		})
	}
}

func TestStatsWithoutPool(t *testing.T) {
	handler := NewQueuesHandler(nil, nil, "test", nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/queues/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 without a database pool", w.Code)
	}
}
