// Package ledger persists a durable record of license and provisioning
// exchanges performed on behalf of hosted DRM sessions. The ledger backs the
// audit surface of the daemon: every provisioning round trip, key exchange,
// and session lifecycle event lands here with its outcome.
package ledger
