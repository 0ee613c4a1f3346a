package app

import "github.com/atelierhq/atelier/internal/cache"

// RedisStoreConfig maps the config block onto the cache package's settings.
func (c CacheConfig) RedisStoreConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  c.Redis.Address,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
