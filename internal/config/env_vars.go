package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	logLevelVar        = "LOG_LEVEL"
	publicOriginVar    = "PUBLIC_ORIGIN"
	settingsPathVar    = "GATEWAY_SETTINGS"
	redisAddrVar       = "REDIS_ADDR"
	redisPasswordVar   = "REDIS_PASSWORD"
	redisDBVar         = "REDIS_DB"
	redisKeyPrefixVar  = "REDIS_KEY_PREFIX"
	defaultRedisPrefix = "gateway:"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Auth Gateway")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetPublicOrigin returns the externally visible origin of the gateway (e.g., "https://app.example.com").
// When empty the value from the settings file is used.
func (EnvVars) GetPublicOrigin() string {
	return GetEnv(publicOriginVar, "")
}

func (EnvVars) GetSettingsPath() string {
	return GetEnv(settingsPathVar, "./gateway.yaml")
}

// GetRedisAddr returns the Redis address for the token store. Empty selects the in-memory store.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func (EnvVars) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func (EnvVars) GetRedisDB() int {
	return GetEnvInt(redisDBVar, 0)
}

func (EnvVars) GetRedisKeyPrefix() string {
	return GetEnv(redisKeyPrefixVar, defaultRedisPrefix)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
