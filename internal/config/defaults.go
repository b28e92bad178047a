package config

const (
	defaultConfigPath           = "~/.config/mbclient/config.toml"
	defaultAPIHost              = "https://api.magicbook.io"
	defaultWebSocketHost        = "wss://socket.magicbook.io"
	defaultRequestTimeout       = 30
	defaultDesignTimeoutSeconds = 300
	defaultOccasion             = "default"
	defaultStyle                = 1004
	defaultBookSize             = "10x10"
	defaultCoverType            = "sc"
	defaultPageType             = "sp"
	defaultImageDensity         = "low"
	defaultImageFilteringLevel  = "best"
	defaultEmbellishmentLevel   = "none"
	defaultTextStickerLevel     = "none"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	envAPIKey                   = "MB_API_KEY"
	envAPIHost                  = "MB_API_HOST"
	envWebSocketHost            = "MB_WEBSOCKET_HOST"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			Host:           defaultAPIHost,
			WebSocketHost:  defaultWebSocketHost,
			RequestTimeout: defaultRequestTimeout,
		},
		Design: Design{
			TimeoutSeconds:             defaultDesignTimeoutSeconds,
			DefaultOccasion:            defaultOccasion,
			DefaultStyle:               defaultStyle,
			DefaultBookSize:            defaultBookSize,
			DefaultCoverType:           defaultCoverType,
			DefaultPageType:            defaultPageType,
			DefaultImageDensity:        defaultImageDensity,
			DefaultImageFilteringLevel: defaultImageFilteringLevel,
			DefaultEmbellishmentLevel:  defaultEmbellishmentLevel,
			DefaultTextStickerLevel:    defaultTextStickerLevel,
		},
		Paths: Paths{
			StateDir: defaultStateDir(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
