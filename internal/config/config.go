package config

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetPublicOrigin() string
	GetSettingsPath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
}

func New() Config {
	return mainConfig{}
}
