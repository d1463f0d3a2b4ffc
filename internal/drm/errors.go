package drm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedScheme means the secure module cannot be instantiated
	// for the requested scheme.
	ErrUnsupportedScheme = errors.New("unsupported protection scheme")
	// ErrMissingSchemeData means the container carries no init data for the
	// bound scheme.
	ErrMissingSchemeData = errors.New("missing scheme init data")
	// ErrNotProvisioned is the transient condition driving the provisioning
	// sub-protocol; it is absorbed by the session manager and never reaches
	// callers.
	ErrNotProvisioned = errors.New("device not provisioned")
	// ErrKeysExpired reports that loaded keys lapsed; an already decrypting
	// session survives it.
	ErrKeysExpired = errors.New("license keys expired")
	// ErrSessionExpired is terminal for the current session.
	ErrSessionExpired = errors.New("module session expired")
	// ErrDenied reports a server rejection of a provisioning or key
	// response.
	ErrDenied = errors.New("denied by server")
	// ErrInvalidState reports a call that is a programming error in the
	// current session state.
	ErrInvalidState = errors.New("invalid session state")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation string, err error) error {
	detail := buildDetail(component, operation)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err is absorbed by the session manager's
// provisioning sub-protocol rather than surfaced to callers.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotProvisioned)
}

func buildDetail(component, operation string) string {
	parts := make([]string, 0, 2)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "drm failure"
	}
	return strings.Join(parts, ": ")
}
