package testsupport

import (
	"path/filepath"
	"testing"

	"keygate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "keygated.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Licensing.Endpoints = map[string]config.Endpoint{
		"widevine": {LicenseURL: "https://license.test/widevine"},
		"clearkey": {LicenseURL: "https://license.test/clearkey"},
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEndpoint sets the license server endpoint for a scheme on the test
// config.
func WithEndpoint(scheme string, endpoint config.Endpoint) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Licensing.Endpoints[scheme] = endpoint
	}
}

// WithDefaultScheme overrides the default session scheme on the test config.
func WithDefaultScheme(scheme string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sessions.DefaultScheme = scheme
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
