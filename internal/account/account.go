// Package account manages users, workspaces, projects and workspace
// memberships, including the invitation flow that brings new members in.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/store"
)

var (
	// ErrNotAnInvitation means the membership is already bound to a user.
	ErrNotAnInvitation = errors.New("membership is not an invitation")

	// ErrInvitationInvalid covers a bad signature, an expired token or a
	// token that does not belong to the membership.
	ErrInvitationInvalid = errors.New("invitation token is invalid")

	// ErrResendBudgetExhausted means the invitation hit its resend cap.
	ErrResendBudgetExhausted = errors.New("invitation resend budget exhausted")

	// ErrAlreadyMember means the user already holds an active membership.
	ErrAlreadyMember = errors.New("user is already a member")
)

// Service manages accounts and tenancy.
type Service struct {
	store       store.Store
	invitations *InvitationSigner
	maxResend   int
}

// NewService wires the account service.
func NewService(st store.Store, invitations *InvitationSigner, maxResend int) *Service {
	return &Service{store: st, invitations: invitations, maxResend: maxResend}
}

// CreateWorkspace creates a workspace and makes the creator its admin.
func (s *Service) CreateWorkspace(ctx context.Context, name, description string, visibility models.Visibility, creator *models.User) (*models.Workspace, error) {
	ws := &models.Workspace{
		Name:        name,
		Description: description,
		Visibility:  visibility,
	}
	if creator != nil {
		ws.CreatedBy = &creator.UUID
	}
	if err := s.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	if creator != nil {
		membership := &models.Membership{
			UserUUID:         &creator.UUID,
			ObjectType:       models.MembershipObjectWorkspace,
			ObjectUUID:       ws.UUID,
			RoleCode:         rbac.CodeWorkspaceAdmin,
			UseGlobalProfile: true,
		}
		if err := s.store.CreateMembership(ctx, membership); err != nil {
			return nil, fmt.Errorf("failed to create admin membership: %w", err)
		}
	}
	log.Info().Str("workspace", ws.SUUID).Msg("Created workspace")
	return ws, nil
}

// CreateProject creates a project inside a workspace.
func (s *Service) CreateProject(ctx context.Context, ws *models.Workspace, name, description string, visibility models.Visibility, creator *models.User) (*models.Project, error) {
	p := &models.Project{
		Name:          name,
		Description:   description,
		Visibility:    visibility,
		WorkspaceUUID: ws.UUID,
	}
	if creator != nil {
		p.CreatedBy = &creator.UUID
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	log.Info().Str("project", p.SUUID).Str("workspace", ws.SUUID).Msg("Created project")
	return p, nil
}

// Invite creates an invitation membership for an email address and returns
// it with a signed token.
func (s *Service) Invite(ctx context.Context, ws *models.Workspace, email, roleCode string, invitedBy *models.User) (*models.Membership, error) {
	if existing, err := s.findMemberByEmail(ctx, ws.UUID, email); err == nil && existing != nil {
		return nil, ErrAlreadyMember
	}

	membership := &models.Membership{
		ObjectType: models.MembershipObjectWorkspace,
		ObjectUUID: ws.UUID,
		RoleCode:   roleCode,
		Email:      email,
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	token, err := s.invitations.Sign(membership)
	if err != nil {
		return nil, err
	}
	now := s.invitations.now()
	membership.InvitationToken = token
	membership.InvitedAt = &now
	if err := s.store.UpdateMembership(ctx, membership); err != nil {
		return nil, err
	}
	log.Info().Str("workspace", ws.SUUID).Str("membership", membership.SUUID).Msg("Created invitation")
	return membership, nil
}

// ResendInvitation issues a fresh token for an outstanding invitation. The
// resend budget bounds how often a single invitation can be re-issued.
func (s *Service) ResendInvitation(ctx context.Context, membership *models.Membership) (*models.Membership, error) {
	if !membership.IsInvitation() {
		return nil, ErrNotAnInvitation
	}
	if membership.ResendCount >= s.maxResend {
		return nil, ErrResendBudgetExhausted
	}

	token, err := s.invitations.Sign(membership)
	if err != nil {
		return nil, err
	}
	now := s.invitations.now()
	membership.InvitationToken = token
	membership.InvitedAt = &now
	membership.ResendCount++
	if err := s.store.UpdateMembership(ctx, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

// AcceptInvitation verifies the token and binds the user to the membership.
// Acceptance clears the invitation fields in the same write, so a membership
// is either an invitation or user-bound, never both.
func (s *Service) AcceptInvitation(ctx context.Context, membership *models.Membership, token string, user *models.User) (*models.Membership, error) {
	if !membership.IsInvitation() {
		return nil, ErrNotAnInvitation
	}
	if err := s.invitations.Verify(token, membership); err != nil {
		return nil, err
	}

	membership.UserUUID = &user.UUID
	membership.Email = ""
	membership.InvitationToken = ""
	membership.InvitedAt = nil
	membership.UseGlobalProfile = true
	if err := s.store.UpdateMembership(ctx, membership); err != nil {
		return nil, err
	}
	log.Info().Str("membership", membership.SUUID).Msg("Invitation accepted")
	return membership, nil
}

// findMemberByEmail locates an active membership or invitation for an email
// in a workspace.
func (s *Service) findMemberByEmail(ctx context.Context, workspaceID uuid.UUID, email string) (*models.Membership, error) {
	memberships, err := s.store.MembershipsForWorkspace(ctx, workspaceID, true)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.IsInvitation() && m.Email == email {
			return m, nil
		}
		if m.UserUUID != nil {
			if user, err := s.store.GetUserByUUID(ctx, *m.UserUUID); err == nil && user.Email == email {
				return m, nil
			}
		}
	}
	return nil, store.ErrNotFound
}
