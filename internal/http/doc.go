// Package http exposes the scheduling and accounting services over a JSON
// API. Identity is resolved upstream and handed over via the X-Member-ID and
// X-Workspace-ID headers.
//
// The router mounts the following endpoints under /api/v1:
//   - POST /patterns: create a recurrence pattern and its generated
//     occurrences. Exchanges the createPatternRequest payload.
//   - POST /occurrences: create a single ad-hoc occurrence.
//   - PATCH /occurrences/{id}: apply a scoped edit (single, future, all).
//   - PATCH /occurrences/{id}/lifecycle: flip the started/ended flags.
//   - POST /slots/claim, POST /slots/release: claim or release a slot on a
//     pattern-dated instance, materializing the occurrence when needed.
//   - POST /rollups: close the current accounting epoch.
//   - GET /members/{id}/quota-progress: live quota evaluation.
//   - GET /members/{id}/snapshots: committed rollup history.
//   - POST/GET /session-types, GET /session-types/{id}: catalog management.
//   - POST/GET /quotas: quota definitions.
//   - POST /activity/clock-in, /activity/clock-out, /activity/adjustments,
//     /activity/events: raw activity capture.
//   - PUT /members/{id}, GET /members: directory management.
//
// /healthz and /metrics live outside the middleware chain. Request/response
// DTOs live in dto.go so tests and documentation share the same ground truth.
package http
