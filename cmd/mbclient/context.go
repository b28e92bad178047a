package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/56kcloud/mb-client/internal/config"
	"github.com/56kcloud/mb-client/internal/design"
	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger writing to the command's stderr.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Writer: cmd.ErrOrStderr(),
			File:   cfg.Logging.File,
		})
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) engineClient(cmd *cobra.Command) (*engine.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return engine.NewClient(engine.Options{
		Host:          cfg.API.Host,
		WebSocketHost: cfg.API.WebSocketHost,
		APIKey:        cfg.API.APIKey,
		Timeout:       cfg.RequestTimeout(),
		Logger:        c.loggerFor(cmd),
	})
}

// designClient publishes through the process-wide event registry.
func (c *commandContext) designClient(cmd *cobra.Command, eng *engine.Client) (*design.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return design.NewClient(eng, design.EngineDialer(eng), design.Options{
		Defaults: designDefaults(cfg),
		Timeout:  cfg.DesignTimeout(),
		LockDir:  cfg.LockDir(),
		Logger:   c.loggerFor(cmd),
	})
}

func designDefaults(cfg *config.Config) design.Properties {
	return design.Properties{
		Occasion:            cfg.Design.DefaultOccasion,
		Style:               cfg.Design.DefaultStyle,
		BookSize:            cfg.Design.DefaultBookSize,
		CoverType:           cfg.Design.DefaultCoverType,
		PageType:            cfg.Design.DefaultPageType,
		ImageDensity:        cfg.Design.DefaultImageDensity,
		ImageFilteringLevel: cfg.Design.DefaultImageFilteringLevel,
		EmbellishmentLevel:  cfg.Design.DefaultEmbellishmentLevel,
		TextStickerLevel:    cfg.Design.DefaultTextStickerLevel,
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
