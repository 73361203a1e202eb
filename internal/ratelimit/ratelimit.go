package ratelimit

import (
	"sync"
	"time"
)

// Operation names the mutating surfaces protected by the guard.
const (
	OpClaim  = "slot.claim"
	OpCreate = "session.create"
	OpEdit   = "occurrence.update"
)

// Rule caps an operation at Limit calls per fixed Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules returns the per-operation limits applied to the engine's
// mutating endpoints.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		OpClaim:  {Limit: 10, Window: 2 * time.Second},
		OpCreate: {Limit: 5, Window: 40 * time.Second},
		OpEdit:   {Limit: 10, Window: 60 * time.Second},
	}
}

// Guard decides whether a (workspace, member, operation) call may proceed.
// Implementations are injectable so the per-process memory guard can be
// replaced by a shared store in multi-instance deployments.
type Guard interface {
	Allow(workspaceID, memberID, operation string) bool
}

type windowState struct {
	start time.Time
	count int
}

// MemoryGuard is a fixed-window counter held in process memory, scoped to
// the running instance.
type MemoryGuard struct {
	mu      sync.Mutex
	now     func() time.Time
	rules   map[string]Rule
	windows map[string]windowState
	onLimit func(operation string)
}

// NewMemoryGuard constructs a guard with the provided rules. A nil rules map
// falls back to DefaultRules; a nil now falls back to time.Now.
func NewMemoryGuard(rules map[string]Rule, now func() time.Time) *MemoryGuard {
	if rules == nil {
		rules = DefaultRules()
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryGuard{
		now:     now,
		rules:   rules,
		windows: make(map[string]windowState),
	}
}

// OnLimit registers a hook invoked whenever a call is rejected. Used to feed
// metrics without coupling the guard to a collector.
func (g *MemoryGuard) OnLimit(fn func(operation string)) {
	g.mu.Lock()
	g.onLimit = fn
	g.mu.Unlock()
}

// Allow records one call and reports whether it fits the operation's window.
// Operations without a configured rule always pass.
func (g *MemoryGuard) Allow(workspaceID, memberID, operation string) bool {
	if g == nil {
		return true
	}

	g.mu.Lock()
	rule, ok := g.rules[operation]
	if !ok || rule.Limit <= 0 {
		g.mu.Unlock()
		return true
	}

	now := g.now()
	key := workspaceID + "|" + memberID + "|" + operation

	state, exists := g.windows[key]
	if !exists || now.Sub(state.start) >= rule.Window {
		state = windowState{start: now}
	}
	state.count++
	allowed := state.count <= rule.Limit
	g.windows[key] = state

	if len(g.windows) > 4096 {
		g.pruneLocked(now)
	}
	hook := g.onLimit
	g.mu.Unlock()

	if !allowed && hook != nil {
		hook(operation)
	}
	return allowed
}

func (g *MemoryGuard) pruneLocked(now time.Time) {
	for key, state := range g.windows {
		operation := key[lastSeparator(key)+1:]
		rule, ok := g.rules[operation]
		if !ok || now.Sub(state.start) >= rule.Window {
			delete(g.windows, key)
		}
	}
}

func lastSeparator(key string) int {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return i
		}
	}
	return -1
}
