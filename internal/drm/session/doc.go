// Package session drives the lifecycle of one streaming DRM session: it
// turns container init data into a key-provisioned decryption session by
// coordinating device provisioning and license exchanges with a remote
// rights server.
//
// The Manager is a single-owner state machine. All state lives on one
// session goroutine fed by a FIFO mailbox; public operations and network
// results are typed messages delivered to that goroutine, so caller calls
// and server responses are never observed concurrently. Outbound network
// requests run on exactly one dispatch goroutine, serialized, with results
// routed back onto the session goroutine.
package session
