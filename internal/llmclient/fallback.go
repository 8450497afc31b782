package llmclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/runtime/internal/aggregate"
)

// FailoverChain tries a sequence of providers in order, skipping any
// whose circuit is currently open. Grounded on the teacher's
// agent.FailoverOrchestrator, simplified to the synchronous Provider
// shape above (no per-attempt retry here — internal/llmhandler already
// wraps the whole chain in its own jittered backoff retry).
type FailoverChain struct {
	providers []Provider
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	states map[string]*circuitState
}

type circuitState struct {
	failures int
	openedAt time.Time
	open     bool
}

// NewFailoverChain builds a chain that opens a provider's circuit after
// threshold consecutive failures, reclosing it after cooldown elapses.
func NewFailoverChain(threshold int, cooldown time.Duration, providers ...Provider) *FailoverChain {
	return &FailoverChain{
		providers: providers,
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[string]*circuitState),
	}
}

func (c *FailoverChain) Name() string { return "failover-chain" }

// Complete tries each provider in order, returning the first success. All
// providers failing returns the last error.
func (c *FailoverChain) Complete(ctx context.Context, req CompletionRequest) (aggregate.CompletionResponse, error) {
	var lastErr error
	for _, p := range c.providers {
		if !c.available(p.Name()) {
			continue
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			c.recordSuccess(p.Name())
			return resp, nil
		}
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
		c.recordFailure(p.Name())
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("llmclient: no available providers")
	}
	return aggregate.CompletionResponse{}, lastErr
}

func (c *FailoverChain) available(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[name]
	if !ok || !s.open {
		return true
	}
	if time.Since(s.openedAt) > c.cooldown {
		return true
	}
	return false
}

func (c *FailoverChain) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, name)
}

func (c *FailoverChain) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[name]
	if !ok {
		s = &circuitState{}
		c.states[name] = s
	}
	s.failures++
	if s.failures >= c.threshold {
		s.open = true
		s.openedAt = time.Now()
	}
}
