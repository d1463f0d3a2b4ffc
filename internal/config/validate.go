package config

import (
	"errors"
	"fmt"
	"net/url"
)

var knownSchemes = map[string]struct{}{
	"widevine":  {},
	"playready": {},
	"clearkey":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLicensing(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.SocketPath == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateLicensing() error {
	if c.Licensing.RequestTimeout <= 0 {
		return errors.New("licensing.request_timeout must be positive")
	}
	for name, endpoint := range c.Licensing.Endpoints {
		if _, ok := knownSchemes[name]; !ok {
			return fmt.Errorf("licensing.endpoints: unknown scheme %q", name)
		}
		if endpoint.LicenseURL == "" {
			return fmt.Errorf("licensing.endpoints.%s.license_url must be set", name)
		}
		if _, err := url.ParseRequestURI(endpoint.LicenseURL); err != nil {
			return fmt.Errorf("licensing.endpoints.%s.license_url: %w", name, err)
		}
		if endpoint.ProvisioningURL != "" {
			if _, err := url.ParseRequestURI(endpoint.ProvisioningURL); err != nil {
				return fmt.Errorf("licensing.endpoints.%s.provisioning_url: %w", name, err)
			}
		}
	}
	return nil
}

func (c *Config) validateSessions() error {
	if _, ok := knownSchemes[c.Sessions.DefaultScheme]; !ok {
		return fmt.Errorf("sessions.default_scheme: unknown scheme %q", c.Sessions.DefaultScheme)
	}
	return nil
}
