// Package drm defines the contracts shared by every content-protection
// component: scheme identifiers, container init data, the secure module
// surface, the license server client, and the error taxonomy.
//
// The package carries no behavior of its own beyond lookups and error
// classification; session orchestration lives in drm/session and concrete
// module/server implementations live in their own packages.
package drm
