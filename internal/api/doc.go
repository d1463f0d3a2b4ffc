// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal session and ledger models into
// transport-friendly DTOs that clients can render without coupling to
// internal types.
//
// DTOs use camelCase JSON tags. Internal enums (session.State, ledger.Kind)
// are exposed as lowercase strings alongside a humanized label. Timestamps
// use RFC3339 with milliseconds.
package api
