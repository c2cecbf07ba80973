// Package orchestrator implements the Request Orchestrator (C6): the
// streaming event loop, agent cache, and process_request entry point.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
)

// Agent is the bound combination of (tool set, model config, stream
// function) described in §4.6. The system prompt and key resolver are
// owned by the caller-supplied Factory, not by the cache itself.
type Agent struct {
	Model    string
	StreamFn streamfn.StreamFn
	Tools    tool.Registry
	Hash     string
}

// Factory builds a fresh Agent for a cache miss.
type Factory func(ctx context.Context, model string) (*Agent, error)

// VersionHash computes the version-hash of a configuration object (§4.3
// step 2, §4.6): any structurally comparable config (max_retries, plan-mode
// flag, etc.) can be passed here; two configs producing the same hash are
// treated as equivalent cache keys.
func VersionHash(cfg any) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("orchestrator: hash config: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8]), nil
}

// AgentCache is the single-tier, session-scoped, lock-protected cache of
// §4.6/§5: cache key is model + config version-hash; invalidated on
// abort/timeout/model change.
type AgentCache struct {
	mu      sync.Mutex
	entries map[string]*Agent
}

func NewAgentCache() *AgentCache {
	return &AgentCache{entries: make(map[string]*Agent)}
}

func cacheKey(model, hash string) string { return model + "@" + hash }

// GetOrCreate returns the cached agent for (model, configHash) or builds one
// via factory, implementing §4.3 step 2's get_or_create_agent.
func (c *AgentCache) GetOrCreate(ctx context.Context, model, configHash string, factory Factory) (*Agent, error) {
	key := cacheKey(model, configHash)

	c.mu.Lock()
	if a, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	a, err := factory(ctx, model)
	if err != nil {
		return nil, err
	}
	a.Model = model
	a.Hash = configHash

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing, nil
	}
	c.entries[key] = a
	return a, nil
}

// Invalidate drops every cache entry for model, regardless of config hash —
// used on abort, timeout, or explicit model change (§4.6).
func (c *AgentCache) Invalidate(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(model) && key[:len(model)] == model && key[len(model)] == '@' {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the whole cache.
func (c *AgentCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Agent)
}
