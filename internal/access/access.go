package access

import (
	"context"
	"sync"
)

// Capabilities gating the engine's mutating operations.
const (
	// CapabilityAdmin is the owner-level capability; it implies every other.
	CapabilityAdmin = "admin"
	// CapabilityManageSessions gates pattern creation and occurrence edits.
	CapabilityManageSessions = "manage_sessions"
	// CapabilityManageActivity gates rollup triggers and manual adjustments.
	CapabilityManageActivity = "manage_activity"
)

// Checker answers permission questions for the engine. The permission
// model's storage lives outside this service; the engine only consumes this
// interface.
type Checker interface {
	HasCapability(ctx context.Context, workspaceID, memberID, capability string) (bool, error)
	HoldsAnyRole(ctx context.Context, workspaceID, memberID string, roleIDs []string) (bool, error)
	RolesOf(ctx context.Context, workspaceID, memberID string) ([]string, error)
}

// Grant lists what one member may do in one workspace.
type Grant struct {
	Capabilities []string
	Roles        []string
}

// StaticChecker is an in-memory Checker seeded from configuration.
type StaticChecker struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewStaticChecker constructs an empty checker.
func NewStaticChecker() *StaticChecker {
	return &StaticChecker{grants: make(map[string]Grant)}
}

// SetGrant replaces the grant for (workspace, member).
func (c *StaticChecker) SetGrant(workspaceID, memberID string, grant Grant) {
	c.mu.Lock()
	c.grants[workspaceID+"|"+memberID] = grant
	c.mu.Unlock()
}

// HasCapability reports whether the member holds the capability. The admin
// capability satisfies every check.
func (c *StaticChecker) HasCapability(_ context.Context, workspaceID, memberID, capability string) (bool, error) {
	c.mu.RLock()
	grant, ok := c.grants[workspaceID+"|"+memberID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	for _, held := range grant.Capabilities {
		if held == capability || held == CapabilityAdmin {
			return true, nil
		}
	}
	return false, nil
}

// HoldsAnyRole reports whether the member holds at least one of the roles.
func (c *StaticChecker) HoldsAnyRole(_ context.Context, workspaceID, memberID string, roleIDs []string) (bool, error) {
	c.mu.RLock()
	grant, ok := c.grants[workspaceID+"|"+memberID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	for _, held := range grant.Roles {
		for _, wanted := range roleIDs {
			if held == wanted {
				return true, nil
			}
		}
	}
	return false, nil
}

// RolesOf returns the member's roles in the workspace.
func (c *StaticChecker) RolesOf(_ context.Context, workspaceID, memberID string) ([]string, error) {
	c.mu.RLock()
	grant, ok := c.grants[workspaceID+"|"+memberID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	roles := make([]string, len(grant.Roles))
	copy(roles, grant.Roles)
	return roles, nil
}
