// Package session keeps per-session conversation state and the query engines
// built for uploaded documents.
package session

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"ragchat/internal/logger"
)

// Key identifies one cached engine.
type Key struct {
	SessionID string
	Filename  string
}

func (k Key) String() string { return k.SessionID + "\x00" + k.Filename }

// Cache maps (session, filename) to a built value. Builds for the same key
// run once even with concurrent callers; failed builds are not cached.
// Evicted values are closed.
type Cache[V io.Closer] struct {
	group   singleflight.Group
	entries *expirable.LRU[Key, V]
	log     *logrus.Logger
}

// NewCache creates a cache holding at most maxEntries values for at most ttl.
// Zero for either means no limit.
func NewCache[V io.Closer](maxEntries int, ttl time.Duration) *Cache[V] {
	c := &Cache[V]{log: logger.GetLogger()}
	c.entries = expirable.NewLRU[Key, V](maxEntries, c.evicted, ttl)
	return c
}

func (c *Cache[V]) evicted(key Key, value V) {
	fields := logrus.Fields{"session": key.SessionID, "file": key.Filename}
	if err := value.Close(); err != nil {
		c.log.WithFields(fields).WithError(err).Warn("failed to release cached engine")
		return
	}
	c.log.WithFields(fields).Debug("cached engine released")
}

// GetOrBuild returns the value cached for key, building it if absent.
// The build runs with the context of the caller that triggered it.
func (c *Cache[V]) GetOrBuild(ctx context.Context, key Key, build func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}
	res, err, shared := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		c.log.WithField("file", key.Filename).Debug("joined in-flight build")
	}
	return res.(V), nil
}

// Get returns the cached value for key without building it.
func (c *Cache[V]) Get(key Key) (V, bool) {
	return c.entries.Get(key)
}

// Evict removes and closes the value for key.
func (c *Cache[V]) Evict(key Key) bool {
	return c.entries.Remove(key)
}

// EvictSession removes and closes every value of a session.
func (c *Cache[V]) EvictSession(sessionID string) int {
	n := 0
	for _, k := range c.entries.Keys() {
		if k.SessionID == sessionID && c.entries.Remove(k) {
			n++
		}
	}
	return n
}

// Len returns the number of cached values.
func (c *Cache[V]) Len() int { return c.entries.Len() }

// Purge removes and closes every value.
func (c *Cache[V]) Purge() { c.entries.Purge() }
