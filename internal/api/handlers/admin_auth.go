package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/verisend/server/internal/api/middleware"
	"github.com/verisend/server/internal/api/problem"
	"github.com/verisend/server/internal/api/validate"
	"github.com/verisend/server/internal/audit"
	"github.com/verisend/server/internal/auth"
	"github.com/verisend/server/internal/domain/users"
)

// AdminAuthHandler issues and clears the dashboard auth cookie.
type AdminAuthHandler struct {
	Users        users.Repository
	JWTManager   *auth.JWTManager
	TokenExpiry  time.Duration
	CookieSecure bool
	Env          string
	Templates    *template.Template
	Audit        *audit.Logger
}

func NewAdminAuthHandler(repo users.Repository, jwtManager *auth.JWTManager, tokenExpiry time.Duration, cookieSecure bool, env string, templates *template.Template, auditLogger *audit.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{
		Users:        repo,
		JWTManager:   jwtManager,
		TokenExpiry:  tokenExpiry,
		CookieSecure: cookieSecure,
		Env:          env,
		Templates:    templates,
		Audit:        auditLogger,
	}
}

func (h *AdminAuthHandler) auditLoginFailure(r *http.Request, username, reason string) {
	if h.Audit != nil {
		h.Audit.Failure(r, "admin.login", username, map[string]string{"reason": reason})
	}
}

func (h *AdminAuthHandler) auditLoginSuccess(r *http.Request, user users.User) {
	if h.Audit != nil {
		h.Audit.Success(r, "admin.login", user.Username, "user", user.ID)
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	User      userInfo `json:"user"`
}

type userInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Login handles POST /api/v1/admin/login. It returns the token in the body
// for API clients and sets the HttpOnly cookie the dashboard relies on.
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil || h.JWTManager == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", nil, h.Env)
		return
	}

	var req loginRequest
	if err := validate.DecodeJSON(r, &req); err != nil {
		validate.WriteError(w, r, err, h.Env)
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			h.auditLoginFailure(r, req.Username, "unknown user")
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid credentials", nil, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
		return
	}

	if !user.IsActive {
		h.auditLoginFailure(r, req.Username, "inactive user")
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid credentials", nil, h.Env)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.auditLoginFailure(r, req.Username, "wrong password")
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid credentials", nil, h.Env)
		return
	}

	token, err := h.JWTManager.Generate(user.ID, user.Role)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Server error", err, h.Env)
		return
	}

	h.auditLoginSuccess(r, user)
	expiresAt := time.Now().Add(h.TokenExpiry)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminAuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.CookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		User: userInfo{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		},
	})
}

// Logout handles POST /api/v1/admin/logout by expiring the cookie.
func (h *AdminAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminAuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// LoginPage renders the dashboard login form with its CSRF token.
func (h *AdminAuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Templates == nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if cookie, err := r.Cookie(middleware.AdminAuthCookieName); err == nil && cookie.Value != "" {
		if _, err := h.JWTManager.Validate(cookie.Value); err == nil {
			http.Redirect(w, r, "/api/queues", http.StatusFound)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	data := map[string]interface{}{
		"Title":     "Verisend Queue Dashboard",
		"CSRFField": middleware.CSRFTemplateField(r),
	}

	if err := h.Templates.ExecuteTemplate(w, "login.html", data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
}

// FormLogin handles the dashboard's HTML form POST. It shares credential
// checks with Login but answers with a redirect instead of JSON.
func (h *AdminAuthHandler) FormLogin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Users == nil || h.JWTManager == nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/api/queues/login?error=1", http.StatusFound)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		http.Redirect(w, r, "/api/queues/login?error=1", http.StatusFound)
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), username)
	if err != nil || !user.IsActive || auth.CheckPassword(user.PasswordHash, password) != nil {
		h.auditLoginFailure(r, username, "invalid credentials")
		http.Redirect(w, r, "/api/queues/login?error=1", http.StatusFound)
		return
	}

	token, err := h.JWTManager.Generate(user.ID, user.Role)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	h.auditLoginSuccess(r, user)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminAuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.TokenExpiry),
		HttpOnly: true,
		Secure:   h.CookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/api/queues", http.StatusFound)
}
