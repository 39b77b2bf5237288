package middleware

import (
	"html/template"
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFProtection wraps cookie-authenticated admin pages with double-submit
// CSRF token validation. Bearer-token API routes do not need it.
func CSRFProtection(authKey []byte, secure bool) func(http.Handler) http.Handler {
	opts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	}

	return csrf.Protect(authKey, opts...)
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"CSRF token validation failed","type":"https://verisend.dev/problems/csrf-failure","status":403}`))
}

// CSRFTemplateField returns the ready-made hidden input for HTML forms.
func CSRFTemplateField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}
