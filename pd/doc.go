// Package pd is a PagerDuty REST v2 client covering what the CLI needs:
// listing incidents, alerts, users, services and teams, and the bulk
// incident actions (acknowledge, resolve, snooze, reassign).
//
// The client rate-limits itself, retries transient failures with backoff,
// honors Retry-After on 429 responses, and classifies 401/403 as
// authorization errors so commands can surface a key hint instead of a
// stack of HTTP noise. List calls page through results transparently up to
// a fixed cap.
package pd
