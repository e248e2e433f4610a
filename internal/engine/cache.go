package engine

import (
	"fmt"
	"log"

	"github.com/stemsplit/api/internal/model"
)

// Cache owns at most one live Separator at a time, tagged with the
// profile it was built for. It is used only from the worker goroutine,
// which is the sole component allowed to construct, invoke, or release
// an engine instance, so no locking here.
type Cache struct {
	factory Factory
	current Separator
	profile model.StemProfile
}

func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory}
}

// Acquire returns an engine for the profile, reusing the cached
// instance when the profile matches. On a profile change the old
// instance is closed before the new one is constructed, so two
// instances never exist concurrently. A construction failure leaves
// the cache empty.
func (c *Cache) Acquire(profile model.StemProfile) (Separator, error) {
	if c.current != nil {
		if c.profile == profile {
			return c.current, nil
		}
		if err := c.current.Close(); err != nil {
			log.Printf("Failed to release %s engine: %v", c.profile, err)
		}
		c.current = nil
		c.profile = ""
	}

	sep, err := c.factory(profile)
	if err != nil {
		return nil, fmt.Errorf("construct %s engine: %w", profile, err)
	}
	c.current = sep
	c.profile = profile
	return sep, nil
}

// Release closes the cached instance, if any. Called at shutdown.
func (c *Cache) Release() {
	if c.current == nil {
		return
	}
	if err := c.current.Close(); err != nil {
		log.Printf("Failed to release %s engine: %v", c.profile, err)
	}
	c.current = nil
	c.profile = ""
}
