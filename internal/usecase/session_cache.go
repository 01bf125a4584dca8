package usecase

import (
	"sync"

	"calmwave-audio-service/internal/audio"
)

// sessionState mirrors the working paths of an in-flight attempt. The durable
// record stays authoritative; losing this cache (restart) only costs the
// cached format hint, which CompleteChunks re-derives from the record.
type sessionState struct {
	SourcePath    string
	ConvertedPath string
	Format        audio.Format
	ChunkCount    int
}

type sessionCache struct {
	mu sync.RWMutex
	m  map[string]*sessionState
}

func newSessionCache() *sessionCache {
	return &sessionCache{m: make(map[string]*sessionState)}
}

// Get returns a copy so callers never hold a reference into the map.
func (c *sessionCache) Get(id string) (sessionState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.m[id]
	if !ok {
		return sessionState{}, false
	}
	return *s, true
}

// Update applies fn to the session for id, creating it on first contact.
func (c *sessionCache) Update(id string, fn func(*sessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[id]
	if !ok {
		s = &sessionState{}
		c.m[id] = s
	}
	fn(s)
}

func (c *sessionCache) Drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

func (c *sessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
