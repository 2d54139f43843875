package family

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/familytree-core/internal/audit"
)

// maxShareCodeAttempts bounds share-code regeneration on collision.
const maxShareCodeAttempts = 5

// Logger is the logging surface the family package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service applies the role and permission rules on top of a Repository.
type Service struct {
	repo    Repository
	audit   audit.Recorder
	logger  Logger
	newCode func() (string, error)
}

// NewService creates a family service. rec may be nil.
func NewService(repo Repository, rec audit.Recorder, logger Logger) *Service {
	if rec == nil {
		rec = audit.Discard
	}
	return &Service{repo: repo, audit: rec, logger: logger, newCode: NewShareCode}
}

// CreateFamily creates a family owned by creatorID, with a fresh share code
// and the creator's membership.
func (s *Service) CreateFamily(ctx context.Context, creatorID string, in Update) (*Family, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	f := &Family{
		Name:        name,
		Motto:       strings.TrimSpace(in.Motto),
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		CreatorID:   creatorID,
	}

	var m *Membership
	for attempt := 1; ; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generating share code: %w", err)
		}
		f.ShareCode = code

		m, err = s.repo.CreateFamily(ctx, f)
		if err == nil {
			break
		}
		if !errors.Is(err, errShareCodeTaken) {
			return nil, err
		}
		if attempt == maxShareCodeAttempts {
			return nil, ErrShareCodeExhausted
		}
		s.logger.Warn("share code collision, retrying", "attempt", attempt)
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionFamilyCreate,
		EntityType: audit.EntityFamily,
		EntityID:   f.ID,
		UserID:     creatorID,
		FamilyID:   f.ID,
		Details:    map[string]any{"membership_id": m.ID},
	})
	s.logger.Info("family created", "family_id", f.ID, "creator_id", creatorID)

	return f, nil
}

// JoinFamily adds userID to the family behind shareCode as an observer.
func (s *Service) JoinFamily(ctx context.Context, userID, shareCode string) (*Family, *Membership, error) {
	code := NormalizeShareCode(shareCode)
	if !IsValidShareCode(code) {
		return nil, nil, ErrFamilyNotFound
	}

	f, err := s.repo.GetFamilyByShareCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.repo.GetMembership(ctx, userID, f.ID); err == nil {
		return nil, nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrMemberNotFound) {
		return nil, nil, err
	}

	m := &Membership{UserID: userID, FamilyID: f.ID, RoleName: RoleObserver}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionFamilyJoin,
		EntityType: audit.EntityMembership,
		EntityID:   m.ID,
		UserID:     userID,
		FamilyID:   f.ID,
	})
	s.logger.Info("family joined", "family_id", f.ID, "user_id", userID)

	return f, m, nil
}

// requireCreator loads the family and checks that actorID created it.
func (s *Service) requireCreator(ctx context.Context, actorID, familyID string) (*Family, error) {
	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if f.CreatorID != actorID {
		return nil, ErrForbidden
	}
	return f, nil
}

// requireMember loads the family and the actor's membership in it.
func (s *Service) requireMember(ctx context.Context, actorID, familyID string) (*Family, *Membership, error) {
	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.repo.GetMembership(ctx, actorID, familyID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, nil, ErrForbidden
		}
		return nil, nil, err
	}
	return f, m, nil
}

// Promote moves targetID to participant and resets their permission rows
// to the participant defaults. Only the creator may promote.
func (s *Service) Promote(ctx context.Context, actorID, familyID, targetID string) (*Membership, error) {
	if _, err := s.requireCreator(ctx, actorID, familyID); err != nil {
		return nil, err
	}

	target, err := s.repo.GetMembership(ctx, targetID, familyID)
	if err != nil {
		return nil, err
	}
	if target.IsCreator {
		return nil, ErrForbidden
	}

	m, err := s.repo.ReplaceRole(ctx, target.ID, RoleParticipant)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionMemberPromote,
		EntityType: audit.EntityMembership,
		EntityID:   m.ID,
		UserID:     actorID,
		FamilyID:   familyID,
		Details:    map[string]any{"target_user_id": targetID, "from": target.RoleName, "to": m.RoleName},
	})
	s.logger.Info("member promoted", "family_id", familyID, "user_id", targetID, "role", m.RoleName)

	return m, nil
}

// CheckShareCode returns the public summary of the family behind code, or
// nil when there is none.
func (s *Service) CheckShareCode(ctx context.Context, code string) (*Summary, error) {
	code = NormalizeShareCode(code)
	if !IsValidShareCode(code) {
		return nil, nil //nolint:nilnil // no family is a valid answer
	}

	f, err := s.repo.GetFamilyByShareCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return nil, nil //nolint:nilnil // no family is a valid answer
		}
		return nil, err
	}

	n, err := s.repo.CountMembers(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		ID:          f.ID,
		Name:        f.Name,
		Motto:       f.Motto,
		Location:    f.Location,
		CreatorID:   f.CreatorID,
		CreatedAt:   f.CreatedAt,
		MemberCount: n,
	}, nil
}

// ListFamilies returns the families userID created or belongs to.
func (s *Service) ListFamilies(ctx context.Context, userID string) ([]Family, error) {
	return s.repo.ListFamiliesForUser(ctx, userID)
}

// ListMembers returns the members of a family. Only members may list.
func (s *Service) ListMembers(ctx context.Context, actorID, familyID string) ([]Member, error) {
	if _, _, err := s.requireMember(ctx, actorID, familyID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, familyID)
}

// Leave removes the actor's membership. The creator cannot leave.
func (s *Service) Leave(ctx context.Context, actorID, familyID string) error {
	f, m, err := s.requireMember(ctx, actorID, familyID)
	if err != nil {
		return err
	}
	if m.IsCreator || f.CreatorID == actorID {
		return ErrCreatorCannotLeave
	}

	if err := s.repo.DeleteMembership(ctx, m.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionFamilyLeave,
		EntityType: audit.EntityMembership,
		EntityID:   m.ID,
		UserID:     actorID,
		FamilyID:   familyID,
	})
	s.logger.Info("family left", "family_id", familyID, "user_id", actorID)
	return nil
}

// UpdateFamily edits the family fields. Creator only.
func (s *Service) UpdateFamily(ctx context.Context, actorID, familyID string, in Update) (*Family, error) {
	f, err := s.requireCreator(ctx, actorID, familyID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		f.Name = name
	}
	f.Motto = strings.TrimSpace(in.Motto)
	f.Location = strings.TrimSpace(in.Location)
	f.Description = strings.TrimSpace(in.Description)

	if err := s.repo.UpdateFamily(ctx, f); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionFamilyUpdate,
		EntityType: audit.EntityFamily,
		EntityID:   f.ID,
		UserID:     actorID,
		FamilyID:   f.ID,
	})
	return f, nil
}

// DeleteFamily removes the family with all memberships. Creator only.
func (s *Service) DeleteFamily(ctx context.Context, actorID, familyID string) error {
	f, err := s.requireCreator(ctx, actorID, familyID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFamily(ctx, f.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionFamilyDelete,
		EntityType: audit.EntityFamily,
		EntityID:   f.ID,
		UserID:     actorID,
		FamilyID:   f.ID,
		Details:    map[string]any{"name": f.Name},
	})
	s.logger.Info("family deleted", "family_id", f.ID, "user_id", actorID)
	return nil
}

// UserRole reports the relation of userID to a family. It never fails for
// anonymous users, non-members or unknown families.
func (s *Service) UserRole(ctx context.Context, userID, familyID string) (RoleStatus, error) {
	if userID == "" {
		return RoleStatus{}, nil
	}

	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return RoleStatus{}, nil
		}
		return RoleStatus{}, err
	}

	status := RoleStatus{IsCreator: f.CreatorID == userID}
	if _, err := s.repo.GetMembership(ctx, userID, familyID); err == nil {
		status.IsMember = true
	} else if !errors.Is(err, ErrMemberNotFound) {
		return RoleStatus{}, err
	}
	return status, nil
}

// Permissions returns the actor's effective permission set in a family.
func (s *Service) Permissions(ctx context.Context, actorID, familyID string) (map[string]bool, error) {
	_, m, err := s.requireMember(ctx, actorID, familyID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.MembershipPermissions(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return EffectivePermissions(m, overrides), nil
}

// SetPermission stores a per-member override. Creator only.
func (s *Service) SetPermission(ctx context.Context, actorID, familyID, targetID, key string, value bool) error {
	if !IsKnownPermission(key) {
		return ErrUnknownPermission
	}
	if _, err := s.requireCreator(ctx, actorID, familyID); err != nil {
		return err
	}

	target, err := s.repo.GetMembership(ctx, targetID, familyID)
	if err != nil {
		return err
	}
	if err := s.repo.SetPermission(ctx, target.ID, key, value); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Action:     audit.ActionPermissionSet,
		EntityType: audit.EntityMembership,
		EntityID:   target.ID,
		UserID:     actorID,
		FamilyID:   familyID,
		Details:    map[string]any{"target_user_id": targetID, "key": key, "value": value},
	})
	return nil
}

// Authorize returns ErrForbidden unless userID effectively holds key in the
// family.
func (s *Service) Authorize(ctx context.Context, userID, familyID, key string) error {
	_, m, err := s.requireMember(ctx, userID, familyID)
	if err != nil {
		return err
	}
	if m.IsCreator {
		return nil
	}

	overrides, err := s.repo.MembershipPermissions(ctx, m.ID)
	if err != nil {
		return err
	}
	if !EffectivePermission(m, overrides, key) {
		return ErrForbidden
	}
	return nil
}
