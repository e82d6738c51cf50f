package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalCache is an in-process Cache for single-instance deployments.
type LocalCache struct {
	c *gocache.Cache
}

// NewLocalCache creates an in-process cache whose entries default to ttl.
func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{c: gocache.New(ttl, 2*ttl)}
}

func (l *LocalCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := l.c.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}

func (l *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	l.c.Set(key, value, ttl)
}

func (l *LocalCache) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		l.c.Delete(k)
	}
}
