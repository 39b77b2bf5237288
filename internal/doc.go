// Package internal documents the verification server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: verification lifecycle and admin account logic
// - storage: Postgres repositories and migrations
// - jobs: River workers for delivery and cleanup
// - ws: WebSocket hub and the Postgres LISTEN/NOTIFY bridge
// - auth, audit, config, email, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
