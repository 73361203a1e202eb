package application

import (
	"context"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/accounting"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
)

// CatalogService manages the workspace catalog: session types, quota
// definitions and the member directory.
type CatalogService struct {
	sessionTypes persistence.SessionTypeRepository
	quotas       persistence.QuotaRepository
	members      persistence.MemberRepository
	env          Env
}

// NewCatalogService wires the catalog surface.
func NewCatalogService(
	sessionTypes persistence.SessionTypeRepository,
	quotas persistence.QuotaRepository,
	members persistence.MemberRepository,
	env Env,
) *CatalogService {
	return &CatalogService{
		sessionTypes: sessionTypes,
		quotas:       quotas,
		members:      members,
		env:          env,
	}
}

// CreateSessionType adds a session type to the workspace catalog.
func (s *CatalogService) CreateSessionType(ctx context.Context, params CreateSessionTypeParams) (persistence.SessionType, error) {
	logger := serviceLogger(ctx, s.env.Logger, "catalog", "create_session_type")

	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageSessions); err != nil {
		return persistence.SessionType{}, err
	}

	validation := &ValidationError{}
	if params.Name == "" {
		validation.add("name", "name is required")
	}
	slots := make([]persistence.SlotDefinition, 0, len(params.Slots))
	seenRoles := make(map[string]struct{}, len(params.Slots))
	for _, slot := range params.Slots {
		if slot.RoleID == "" {
			validation.add("slots", "every slot needs a role")
			break
		}
		if slot.Count <= 0 {
			validation.add("slots", "slot counts must be positive")
			break
		}
		if _, ok := seenRoles[slot.RoleID]; ok {
			validation.add("slots", "slot roles must be unique")
			break
		}
		seenRoles[slot.RoleID] = struct{}{}
		slots = append(slots, persistence.SlotDefinition{
			RoleID: slot.RoleID,
			Label:  slot.Label,
			Count:  slot.Count,
		})
	}
	if validation.HasErrors() {
		return persistence.SessionType{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	now := s.env.clock()
	sessionType := persistence.SessionType{
		ID:               s.env.id(),
		WorkspaceID:      params.WorkspaceID,
		Name:             params.Name,
		Category:         params.Category,
		AllowUnscheduled: params.AllowUnscheduled,
		HostingRoleIDs:   params.HostingRoleIDs,
		Slots:            slots,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionTypes.CreateSessionType(storeCtx, sessionType); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "session type creation failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.SessionType{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "session_type.create",
		Subject:     sessionType.ID,
		Metadata:    map[string]any{"name": sessionType.Name},
	})
	return sessionType, nil
}

// GetSessionType returns one catalog entry scoped to the workspace.
func (s *CatalogService) GetSessionType(ctx context.Context, workspaceID, id string) (persistence.SessionType, error) {
	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sessionType, err := s.sessionTypes.GetSessionType(storeCtx, id)
	if err != nil {
		return persistence.SessionType{}, mapStorageError(err)
	}
	if sessionType.WorkspaceID != workspaceID {
		return persistence.SessionType{}, ErrNotFound
	}
	return sessionType, nil
}

// ListSessionTypes returns the workspace catalog.
func (s *CatalogService) ListSessionTypes(ctx context.Context, workspaceID string) ([]persistence.SessionType, error) {
	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sessionTypes, err := s.sessionTypes.ListSessionTypes(storeCtx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return sessionTypes, nil
}

// CreateQuota defines a role-scoped quota target.
func (s *CatalogService) CreateQuota(ctx context.Context, params CreateQuotaParams) (persistence.Quota, error) {
	logger := serviceLogger(ctx, s.env.Logger, "catalog", "create_quota")

	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageActivity); err != nil {
		return persistence.Quota{}, err
	}

	validation := &ValidationError{}
	if params.Name == "" {
		validation.add("name", "name is required")
	}
	if !accounting.ValidQuotaKind(params.Kind) {
		validation.add("kind", "unsupported quota kind")
	}
	if params.Threshold <= 0 {
		validation.add("threshold", "threshold must be positive")
	}
	if validation.HasErrors() {
		return persistence.Quota{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	quota := persistence.Quota{
		ID:              s.env.id(),
		WorkspaceID:     params.WorkspaceID,
		Name:            params.Name,
		Kind:            params.Kind,
		Threshold:       params.Threshold,
		SessionCategory: params.SessionCategory,
		RoleIDs:         params.RoleIDs,
		CreatedAt:       s.env.clock(),
	}
	if err := s.quotas.CreateQuota(storeCtx, quota); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "quota creation failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.Quota{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "quota.create",
		Subject:     quota.ID,
		Metadata:    map[string]any{"kind": quota.Kind, "threshold": quota.Threshold},
	})
	return quota, nil
}

// ListQuotas returns the workspace's quota definitions.
func (s *CatalogService) ListQuotas(ctx context.Context, workspaceID string) ([]persistence.Quota, error) {
	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	quotas, err := s.quotas.ListQuotas(storeCtx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return quotas, nil
}

// UpsertMember writes a directory row used for response enrichment.
func (s *CatalogService) UpsertMember(ctx context.Context, params UpsertMemberParams) (persistence.Member, error) {
	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityAdmin); err != nil {
		return persistence.Member{}, err
	}

	validation := &ValidationError{}
	if params.MemberID == "" {
		validation.add("member_id", "member is required")
	}
	if params.DisplayName == "" {
		validation.add("display_name", "display name is required")
	}
	if validation.HasErrors() {
		return persistence.Member{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	now := s.env.clock()
	member := persistence.Member{
		ID:          params.MemberID,
		WorkspaceID: params.WorkspaceID,
		DisplayName: params.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.members.UpsertMember(storeCtx, member); err != nil {
		return persistence.Member{}, mapStorageError(err)
	}
	return member, nil
}

// ListMembers returns the workspace directory.
func (s *CatalogService) ListMembers(ctx context.Context, workspaceID string) ([]persistence.Member, error) {
	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	members, err := s.members.ListMembers(storeCtx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return members, nil
}
