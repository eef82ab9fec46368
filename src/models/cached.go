package models

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/cache"
)

// CachedLLM wraps an Agent and caches Generate calls.
type CachedLLM struct {
	Agent    Agent
	Cache    *cache.LRU[string]
	FilePath string

	saveMu sync.Mutex
}

// NewCachedLLM creates a new CachedLLM wrapper. A non-empty filePath persists the cache.
func NewCachedLLM(agent Agent, size int, ttl time.Duration, filePath string) *CachedLLM {
	c := &CachedLLM{
		Agent:    agent,
		Cache:    cache.New[string](size, ttl),
		FilePath: filePath,
	}
	if filePath != "" {
		c.load()
	}
	return c
}

func (c *CachedLLM) load() {
	f, err := os.Open(c.FilePath)
	if err != nil {
		return // ignore errors (file not found, etc)
	}
	defer f.Close()

	var dump map[string]cache.Entry[string]
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		c.Cache.Restore(dump)
	}
}

// save rewrites the cache file. Concurrent callers are serialised and each
// writes its own temp file, so a reader only ever sees a complete dump.
func (c *CachedLLM) save() {
	if c.FilePath == "" {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(c.FilePath), filepath.Base(c.FilePath)+".*.tmp")
	if err != nil {
		return
	}
	tmp := f.Name()
	if err := json.NewEncoder(f).Encode(c.Cache.Dump()); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, c.FilePath); err != nil {
		os.Remove(tmp)
	}
}

func requestKey(req Request) string {
	return cache.HashKey(req.System, req.Prompt, strconv.Itoa(req.MaxTokens), strconv.FormatFloat(float64(req.Temperature), 'f', -1, 32))
}

// Generate checks the cache before calling the underlying agent. Errors are not cached.
func (c *CachedLLM) Generate(ctx context.Context, req Request) (string, error) {
	key := requestKey(req)
	if val, ok := c.Cache.Get(key); ok {
		return val, nil
	}
	res, err := c.Agent.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, res)
	c.save()
	return res, nil
}

// TryCreateCachedLLM wraps agent when JOURNAL_LLM_CACHE_SIZE is set.
func TryCreateCachedLLM(agent Agent) Agent {
	size, err := strconv.Atoi(os.Getenv("JOURNAL_LLM_CACHE_SIZE"))
	if err != nil || size <= 0 {
		return agent
	}
	ttl := 300 * time.Second
	if sec, err := strconv.Atoi(os.Getenv("JOURNAL_LLM_CACHE_TTL")); err == nil && sec > 0 {
		ttl = time.Duration(sec) * time.Second
	}
	return NewCachedLLM(agent, size, ttl, os.Getenv("JOURNAL_LLM_CACHE_PATH"))
}

var _ Agent = (*CachedLLM)(nil)
