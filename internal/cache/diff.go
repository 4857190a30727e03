package cache

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"gitpanel/shared/types"
)

// DiffKey identifies a diff by the content and mode on both sides, so an
// entry never goes stale and needs no expiry.
func DiffKey(repoID, path string, kind shared.DiffKind, oldSide, newSide string) string {
	return strings.Join([]string{repoID, path, string(kind), oldSide, newSide}, "|")
}

type diffEntry struct {
	body       []byte
	compressed bool
}

// DiffCache is a bounded diff text cache evicting the oldest insertion first.
// Reads use Peek and writes use ContainsOrAdd so lookups never refresh an
// entry's position.
type DiffCache struct {
	entries *lru.Cache[string, diffEntry]
	codec   *codec
}

// NewDiffCache holds up to capacity entries. Bodies of at least
// compressMinSize bytes are stored zstd-compressed; 0 disables compression.
func NewDiffCache(capacity, compressMinSize int) (*DiffCache, error) {
	entries, err := lru.New[string, diffEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating diff cache: %w", err)
	}
	c, err := newCodec(compressMinSize)
	if err != nil {
		return nil, err
	}
	return &DiffCache{entries: entries, codec: c}, nil
}

func (c *DiffCache) Get(key string) (string, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return "", false
	}
	if !e.compressed {
		return string(e.body), true
	}
	body, err := c.codec.decompress(e.body)
	if err != nil {
		c.entries.Remove(key)
		return "", false
	}
	return string(body), true
}

// Set stores text under key unless the key is already present.
func (c *DiffCache) Set(key, text string) {
	e := diffEntry{body: []byte(text)}
	if c.codec.shouldCompress(len(e.body)) {
		e.body = c.codec.compress(e.body)
		e.compressed = true
	}
	c.entries.ContainsOrAdd(key, e)
}

// Purge drops every entry of repoID.
func (c *DiffCache) Purge(repoID string) {
	prefix := repoID + "|"
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
		}
	}
}

func (c *DiffCache) Len() int {
	return c.entries.Len()
}
