// Package audit records admin actions as structured log entries so that
// logins, revocations, and queue interventions can be traced after the fact.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Entry is a single audit record.
type Entry struct {
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string
	Details      map[string]string
}

// Logger writes audit entries through zerolog with a fixed marker field,
// so they can be filtered out of the main log stream.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Bool("audit", true).Logger()}
}

// Log writes one audit entry at info level regardless of outcome. Failed
// actions are part of the trail, not errors in the server.
func (l *Logger) Log(entry Entry) {
	event := l.logger.Info().
		Time("at", time.Now().UTC()).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		event = event.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		event = event.Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		event = event.Str("ip", entry.IPAddress)
	}
	for k, v := range entry.Details {
		event = event.Str("detail_"+k, v)
	}
	event.Msg("audit")
}

// Success records a completed admin action.
func (l *Logger) Success(r *http.Request, action, actor, resourceType, resourceID string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    clientIP(r),
		Status:       "success",
	})
}

// Failure records a rejected or failed admin action.
func (l *Logger) Failure(r *http.Request, action, actor string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		Actor:     actor,
		IPAddress: clientIP(r),
		Status:    "failure",
		Details:   details,
	})
}

// clientIP reports the peer address only. Forwarded headers are not
// trusted here; the rate limiter handles proxy awareness separately.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
