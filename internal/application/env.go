package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/obs"
	"github.com/example/staff-scheduler/internal/ratelimit"
)

// Env bundles the cross-cutting dependencies shared by every service. NewID
// and Now are injectable for deterministic tests and default to uuid.NewString
// and time.Now.
type Env struct {
	Checker        access.Checker
	Guard          ratelimit.Guard
	Audit          audit.Sink
	Metrics        *obs.Metrics
	Logger         *slog.Logger
	NewID          func() string
	Now            func() time.Time
	StorageTimeout time.Duration
}

func (e Env) id() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Env) clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) allow(workspaceID, memberID, operation string) bool {
	if e.Guard == nil {
		return true
	}
	return e.Guard.Allow(workspaceID, memberID, operation)
}

func (e Env) record(ctx context.Context, entry audit.Entry) {
	if e.Audit == nil {
		return
	}
	entry.At = e.clock()
	e.Audit.Record(ctx, entry)
}

func (e Env) requireCapability(ctx context.Context, workspaceID, memberID, capability string) error {
	if e.Checker == nil {
		return ErrUnauthorized
	}
	ok, err := e.Checker.HasCapability(ctx, workspaceID, memberID, capability)
	if err != nil {
		return mapStorageError(err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
