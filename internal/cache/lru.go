package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// LRU — потокобезопасный LRU-кэш проекций. Нулевой указатель — выключенный
// кэш: Get всегда промахивается, Add и Remove ничего не делают.
type LRU[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	log   zerolog.Logger
}

// New создаёт кэш размера size. При enabled = false возвращает nil, nil.
func New[K comparable, V any](enabled bool, size int, log zerolog.Logger) (*LRU[K, V], error) {
	if !enabled {
		log.Info().Msg("cache disabled")
		return nil, nil
	}

	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("init lru cache (size=%d): %w", size, err)
	}

	return &LRU[K, V]{cache: c, log: log}, nil
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.cache.Get(key)
	if ok {
		c.log.Debug().Interface("key", key).Msg("cache hit")
	} else {
		c.log.Debug().Interface("key", key).Msg("cache miss")
	}
	return v, ok
}

func (c *LRU[K, V]) Add(key K, value V) {
	if c == nil {
		return
	}
	c.cache.Add(key, value)
}

// Remove удаляет ключ; возвращает true, если он был в кэше.
func (c *LRU[K, V]) Remove(key K) bool {
	if c == nil {
		return false
	}
	return c.cache.Remove(key)
}

// RemoveFunc удаляет все ключи, для которых match вернул true.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	if c == nil {
		return 0
	}
	var n int
	for _, k := range c.cache.Keys() {
		if match(k) && c.cache.Remove(k) {
			n++
		}
	}
	return n
}

func (c *LRU[K, V]) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
