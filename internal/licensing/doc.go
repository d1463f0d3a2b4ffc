// Package licensing talks to remote license and provisioning servers on
// behalf of DRM sessions. The Client implements drm.ServerClient with
// per-scheme endpoints, request retries, and outbound rate limiting.
package licensing
