package config

import "time"

type SecurityConfig interface {
	GetSessionCookieName() string
	GetSecureCookies() bool
	GetMaxSessionAge() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSessionCookieName() string {
	return GetEnv("GATEWAY_SESSION_COOKIE", "gateway_session")
}

// GetSecureCookies is false only in DEV so the gateway works over plain http locally.
func (Security) GetSecureCookies() bool {
	return EnvVars{}.GetEnv() != "DEV"
}

func (Security) GetMaxSessionAge() time.Duration {
	return GetEnvDuration("GATEWAY_SESSION_MAX_AGE", 8*time.Hour)
}
