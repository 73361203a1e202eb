package http

import (
	"context"

	"github.com/example/staff-scheduler/internal/application"
)

type contextKey int

const (
	principalKey contextKey = iota
	workspaceKey
)

func contextWithPrincipal(ctx context.Context, principal application.Principal, workspaceID string) context.Context {
	ctx = context.WithValue(ctx, principalKey, principal)
	return context.WithValue(ctx, workspaceKey, workspaceID)
}

func principalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(application.Principal)
	return principal, ok
}

func workspaceFromContext(ctx context.Context) string {
	workspaceID, _ := ctx.Value(workspaceKey).(string)
	return workspaceID
}
