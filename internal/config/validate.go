package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateDesign(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if err := validateHost("api.host", c.API.Host, "http", "https"); err != nil {
		return err
	}
	if err := validateHost("api.websocket_host", c.API.WebSocketHost, "ws", "wss"); err != nil {
		return err
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("api.request_timeout must be positive")
	}
	return nil
}

// RequireAPIKey reports a helpful error when no API key is configured. Only
// commands that talk to the engine call it, so `config init` works without one.
func (c *Config) RequireAPIKey() error {
	if c.API.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("api.api_key is required. Set %s env var or edit %s (create with 'mbclient config init')", envAPIKey, defaultPath)
}

func (c *Config) validateDesign() error {
	if c.Design.TimeoutSeconds <= 0 {
		return errors.New("design.timeout_seconds must be positive")
	}
	if c.Design.DefaultStyle <= 0 {
		return errors.New("design.default_style must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateHost(key, value string, schemes ...string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %s, got %q", key, strings.Join(schemes, "/"), parsed.Scheme)
}
