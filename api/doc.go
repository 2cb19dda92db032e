// Package api documents the aiorch HTTP API. Handlers live in api/handlers.
//
// # API Overview
//
// aiorch exposes the orchestrator over a small JSON API:
//   - POST /v1/agents/{type}/process  run one agent request
//   - POST /v1/batch                  run several requests concurrently, results in request order
//   - POST /v1/pipelines/battlecard   aggregate research, then generate a battlecard
//   - POST /v1/requests/{id}/cancel   cancel an in-flight request
//   - GET  /v1/requests               list in-flight requests
//   - GET  /v1/agents                 registered agent types with health
//   - GET  /v1/status                 load, cache statistics and per-agent health
//   - GET  /v1/status/stream          the same status pushed over a WebSocket
//   - GET  /v1/results[/{id}]         journaled results, when a database is configured
//   - GET  /health, /healthz, /ready, /version, /metrics
//
// # Authentication
//
// When API keys are configured every /v1 endpoint requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret is configured, an HS256 bearer token is required instead:
//
//	Authorization: Bearer <token>
//
// # Envelope
//
// Every JSON response uses the same envelope:
//
//	{"success": false, "data": {...}, "error": {"code": "DEADLINE_EXCEEDED",
//	 "kind": "timeout_error", "message": "...", "retryable": true},
//	 "timestamp": "...", "request_id": "..."}
//
// Failed agent results still carry the full result in data, so callers can read
// the attempt count and latency.
package api
