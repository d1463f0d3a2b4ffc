// Package daemon hosts a registry of DRM sessions keyed by content ID and
// enforces single-instance execution. It wires session managers to the
// license server client, records lifecycle events and license exchanges in
// the ledger, and serves the HTTP status API.
package daemon
