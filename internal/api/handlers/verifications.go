package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/verisend/server/internal/api/middleware"
	"github.com/verisend/server/internal/api/problem"
	"github.com/verisend/server/internal/api/validate"
	"github.com/verisend/server/internal/audit"
	"github.com/verisend/server/internal/domain/verification"
	"github.com/verisend/server/internal/metrics"
)

// VerificationsHandler exposes the challenge lifecycle endpoints.
type VerificationsHandler struct {
	Service *verification.Service
	Env     string
	Audit   *audit.Logger
}

func NewVerificationsHandler(service *verification.Service, env string, auditLogger *audit.Logger) *VerificationsHandler {
	return &VerificationsHandler{Service: service, Env: env, Audit: auditLogger}
}

type createVerificationRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	TTLSeconds int    `json:"ttl_seconds" validate:"omitempty,min=30,max=86400"`
}

type confirmVerificationRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	Value      string `json:"value" validate:"required"`
}

// verificationResponse never carries the token value; it only travels over
// the delivery channel.
type verificationResponse struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toResponse(v verification.Verification) verificationResponse {
	return verificationResponse{
		ID:         v.ID,
		Identifier: v.Identifier,
		ExpiresAt:  v.ExpiresAt,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
}

func (h *VerificationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, "")
		return
	}

	// Validation runs first so malformed requests are answered 422 even
	// when the backend is degraded.
	var input createVerificationRequest
	if err := validate.DecodeJSON(r, &input); err != nil {
		validate.WriteError(w, r, err, h.Env)
		return
	}

	if h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	record, err := h.Service.Create(r.Context(), input.Identifier, time.Duration(input.TTLSeconds)*time.Second)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
		return
	}

	metrics.VerificationsCreated.Inc()
	writeJSON(w, http.StatusCreated, toResponse(record))
}

func (h *VerificationsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, "")
		return
	}

	var input confirmVerificationRequest
	if err := validate.DecodeJSON(r, &input); err != nil {
		validate.WriteError(w, r, err, h.Env)
		return
	}

	if h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	err := h.Service.Confirm(r.Context(), input.Identifier, input.Value)
	switch {
	case err == nil:
		metrics.VerificationsConfirmed.Inc()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "confirmed",
			"identifier": input.Identifier,
		})
	case errors.Is(err, verification.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "No active verification", err, h.Env)
	case errors.Is(err, verification.ErrMismatch):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Verification failed", err, h.Env,
			problem.WithErrors(map[string]interface{}{"value": "value does not match"}))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
	}
}

func (h *VerificationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	id, ok := h.verificationID(w, r)
	if !ok {
		return
	}

	record, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(record))
}

func (h *VerificationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	id, ok := h.verificationID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "verification.revoke", adminActor(r), "verification", id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// adminActor names the authenticated admin for the audit trail.
func adminActor(r *http.Request) string {
	if claims := middleware.AdminClaims(r); claims != nil {
		return claims.Subject
	}
	return "unknown"
}

func (h *VerificationsHandler) verificationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(pathParam(r, "id"))
	if id == "" {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Invalid request", nil, h.Env,
			problem.WithErrors(map[string]interface{}{"id": "missing"}))
		return "", false
	}
	if _, err := ulid.Parse(id); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithErrors(map[string]interface{}{"id": "invalid ULID"}))
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return r.PathValue(key)
}
