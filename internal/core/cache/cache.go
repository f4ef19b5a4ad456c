package cache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResponseCache remembers raw service responses keyed by the exact request
// that produced them, so re-saving an unchanged document does not cost a
// round trip.
type ResponseCache struct {
	lru *lru.Cache[string, []byte]
}

func NewResponseCache(size int) (*ResponseCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{lru: c}, nil
}

// Key hashes everything that determines the response.
func Key(endpoint string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (c *ResponseCache) Put(key string, body []byte) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key, clone(body))
}

func (c *ResponseCache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *ResponseCache) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
