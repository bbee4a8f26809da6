// Package health serves the liveness and readiness endpoints used by
// orchestration probes.
//
// GET /health answers "OK" as soon as the process is up. GET /ready answers
// "READY" when the configured Checker passes, typically the executor
// running its readiness probe script, and 503 otherwise.
package health
