package config

import "time"

type TokenConfig interface {
	GetTokenCleanupInterval() time.Duration
	GetRefreshSkew() time.Duration
	GetExchangeTimeout() time.Duration
	GetAuthFlowTimeout() time.Duration
	GetOnBehalfOfCacheSize() int
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

// GetTokenCleanupInterval is how often expired token records are swept from the store.
func (Tokens) GetTokenCleanupInterval() time.Duration {
	return GetEnvDuration("TOKEN_CLEANUP_INTERVAL", 5*time.Minute)
}

// GetRefreshSkew is how long before expiry a cached service token is renewed.
func (Tokens) GetRefreshSkew() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_SKEW", 30*time.Second)
}

func (Tokens) GetExchangeTimeout() time.Duration {
	return GetEnvDuration("TOKEN_EXCHANGE_TIMEOUT", 15*time.Second)
}

func (Tokens) GetAuthFlowTimeout() time.Duration {
	return 10 * time.Minute
}

func (Tokens) GetOnBehalfOfCacheSize() int {
	return GetEnvInt("OBO_CACHE_SIZE", 10000)
}
