package config

const (
	defaultDataDir        = "~/.local/share/keygate"
	defaultLogDir         = "~/.local/share/keygate/logs"
	defaultAPIBind        = "127.0.0.1:7512"
	defaultSocketPath     = "~/.local/share/keygate/keygated.sock"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 30
	defaultMaxRetries     = 3
	defaultRatePerSecond  = 4.0
	defaultRateBurst      = 2
	defaultUserAgent      = "keygate/dev"
	defaultScheme         = "widevine"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
			SocketPath: defaultSocketPath,
		},
		Licensing: Licensing{
			RequestTimeout: defaultRequestTimeout,
			MaxRetries:     defaultMaxRetries,
			RatePerSecond:  defaultRatePerSecond,
			RateBurst:      defaultRateBurst,
			UserAgent:      defaultUserAgent,
			Endpoints:      map[string]Endpoint{},
		},
		Sessions: Sessions{
			DefaultScheme: defaultScheme,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
