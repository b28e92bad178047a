package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	c.normalizeDesign()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeAPI() {
	if value, ok := lookupEnv(envAPIKey); ok {
		c.API.APIKey = value
	}
	if value, ok := lookupEnv(envAPIHost); ok {
		c.API.Host = value
	}
	if value, ok := lookupEnv(envWebSocketHost); ok {
		c.API.WebSocketHost = value
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	c.API.Host = strings.TrimRight(strings.TrimSpace(c.API.Host), "/")
	if c.API.Host == "" {
		c.API.Host = defaultAPIHost
	}
	c.API.WebSocketHost = strings.TrimRight(strings.TrimSpace(c.API.WebSocketHost), "/")
	if c.API.WebSocketHost == "" {
		c.API.WebSocketHost = defaultWebSocketHost
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeDesign() {
	if c.Design.TimeoutSeconds == 0 {
		c.Design.TimeoutSeconds = defaultDesignTimeoutSeconds
	}
	if c.Design.DefaultStyle == 0 {
		c.Design.DefaultStyle = defaultStyle
	}
	fields := []struct {
		value    *string
		fallback string
	}{
		{&c.Design.DefaultOccasion, defaultOccasion},
		{&c.Design.DefaultBookSize, defaultBookSize},
		{&c.Design.DefaultCoverType, defaultCoverType},
		{&c.Design.DefaultPageType, defaultPageType},
		{&c.Design.DefaultImageDensity, defaultImageDensity},
		{&c.Design.DefaultImageFilteringLevel, defaultImageFilteringLevel},
		{&c.Design.DefaultEmbellishmentLevel, defaultEmbellishmentLevel},
		{&c.Design.DefaultTextStickerLevel, defaultTextStickerLevel},
	}
	for _, field := range fields {
		*field.value = strings.ToLower(strings.TrimSpace(*field.value))
		if *field.value == "" {
			*field.value = field.fallback
		}
	}
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		var err error
		if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}

// lookupEnv returns the trimmed value of key when it is set and non-blank.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
