package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLicensing()
	c.normalizeSessions()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeLicensing() {
	if c.Licensing.RequestTimeout <= 0 {
		c.Licensing.RequestTimeout = defaultRequestTimeout
	}
	if c.Licensing.MaxRetries < 0 {
		c.Licensing.MaxRetries = 0
	}
	if c.Licensing.RatePerSecond <= 0 {
		c.Licensing.RatePerSecond = defaultRatePerSecond
	}
	if c.Licensing.RateBurst <= 0 {
		c.Licensing.RateBurst = defaultRateBurst
	}
	if strings.TrimSpace(c.Licensing.UserAgent) == "" {
		c.Licensing.UserAgent = defaultUserAgent
	}
	if c.Licensing.Endpoints == nil {
		c.Licensing.Endpoints = map[string]Endpoint{}
	}
	normalized := make(map[string]Endpoint, len(c.Licensing.Endpoints))
	for name, endpoint := range c.Licensing.Endpoints {
		endpoint.LicenseURL = strings.TrimSpace(endpoint.LicenseURL)
		endpoint.ProvisioningURL = strings.TrimSpace(endpoint.ProvisioningURL)
		normalized[strings.ToLower(strings.TrimSpace(name))] = endpoint
	}
	c.Licensing.Endpoints = normalized
}

func (c *Config) normalizeSessions() {
	c.Sessions.DefaultScheme = strings.ToLower(strings.TrimSpace(c.Sessions.DefaultScheme))
	if c.Sessions.DefaultScheme == "" {
		c.Sessions.DefaultScheme = defaultScheme
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
