// Package api exposes the store of record over HTTP for widget backends and
// agent consoles.
//
// # Endpoints
//
//   - GET  /health
//   - POST /api/classify: triage a text, with routing and the bot reply
//   - POST /api/conversations: create, or return an existing id
//   - GET  /api/conversations/{id}
//   - GET  /api/conversations/{id}/messages
//   - POST /api/conversations/{id}/messages
//   - GET  /api/conversations/{id}/stream: SSE, "ready" then "message" events
//   - POST /api/conversations/{id}/close
//
// Messages posted here reach stream subscribers only when the store passed to
// New publishes on save.
package api
