// Package internal holds the RSVP server internals.
//
// Layout:
// - api: gateway router, handlers, middleware, and problem responses
// - domain: users, events, and registrations services with their models
// - storage: repository contracts with Postgres and in-memory backends
// - notify, jobs, email, broker: post-commit registration notifications
// - auth, audit, config, metrics, telemetry, uploads: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
