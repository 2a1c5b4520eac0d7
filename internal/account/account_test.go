package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *InvitationSigner) {
	t.Helper()
	st := memory.NewStore()
	signer := NewInvitationSigner([]byte("test-secret"), 7*24*time.Hour)
	return NewService(st, signer, 3), st, signer
}

func newUser(t *testing.T, st *memory.Store, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, IsActive: true}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func TestCreateWorkspaceMakesCreatorAdmin(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	creator := newUser(t, st, "founder@example.com")

	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, creator)
	require.NoError(t, err)
	require.Equal(t, creator.UUID, *ws.CreatedBy)

	memberships, err := st.MembershipsForUser(ctx, creator.UUID)
	require.NoError(t, err)
	require.Equal(t, rbac.CodeWorkspaceAdmin, memberships[ws.UUID])
}

func TestInvitationFlow(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	admin := newUser(t, st, "admin@example.com")

	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)

	invitation, err := svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)
	require.True(t, invitation.IsInvitation())
	require.NotEmpty(t, invitation.InvitationToken)
	require.NotNil(t, invitation.InvitedAt)

	invitee := newUser(t, st, "new@example.com")
	accepted, err := svc.AcceptInvitation(ctx, invitation, invitation.InvitationToken, invitee)
	require.NoError(t, err)
	require.False(t, accepted.IsInvitation())
	require.Equal(t, invitee.UUID, *accepted.UserUUID)
	require.Empty(t, accepted.InvitationToken)
	require.Empty(t, accepted.Email)
	require.Nil(t, accepted.InvitedAt)

	memberships, err := st.MembershipsForUser(ctx, invitee.UUID)
	require.NoError(t, err)
	require.Equal(t, rbac.CodeWorkspaceMember, memberships[ws.UUID])

	t.Run("accepting twice fails", func(t *testing.T) {
		_, err := svc.AcceptInvitation(ctx, accepted, invitation.InvitationToken, invitee)
		require.ErrorIs(t, err, ErrNotAnInvitation)
	})
}

func TestAcceptRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	admin := newUser(t, st, "admin@example.com")
	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)

	invitation, err := svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)

	invitee := newUser(t, st, "new@example.com")
	_, err = svc.AcceptInvitation(ctx, invitation, invitation.InvitationToken+"x", invitee)
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestAcceptRejectsTokenForOtherInvitation(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	admin := newUser(t, st, "admin@example.com")
	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)

	first, err := svc.Invite(ctx, ws, "a@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)
	second, err := svc.Invite(ctx, ws, "b@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)

	invitee := newUser(t, st, "a@example.com")
	_, err = svc.AcceptInvitation(ctx, first, second.InvitationToken, invitee)
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestAcceptRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	signer := NewInvitationSigner([]byte("test-secret"), time.Hour)
	svc := NewService(st, signer, 3)

	admin := newUser(t, st, "admin@example.com")
	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)
	invitation, err := svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)

	// Move the signer's clock past the validity window.
	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	invitee := newUser(t, st, "new@example.com")
	_, err = svc.AcceptInvitation(ctx, invitation, invitation.InvitationToken, invitee)
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestResendBudget(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	admin := newUser(t, st, "admin@example.com")
	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)

	invitation, err := svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		invitation, err = svc.ResendInvitation(ctx, invitation)
		require.NoError(t, err)
	}
	_, err = svc.ResendInvitation(ctx, invitation)
	require.ErrorIs(t, err, ErrResendBudgetExhausted)
}

func TestInviteExistingMember(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	admin := newUser(t, st, "admin@example.com")
	ws, err := svc.CreateWorkspace(ctx, "team", "", models.VisibilityPrivate, admin)
	require.NoError(t, err)

	_, err = svc.Invite(ctx, ws, "admin@example.com", rbac.CodeWorkspaceMember, admin)
	require.ErrorIs(t, err, ErrAlreadyMember)

	// An outstanding invitation blocks a duplicate too.
	_, err = svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.NoError(t, err)
	_, err = svc.Invite(ctx, ws, "new@example.com", rbac.CodeWorkspaceMember, admin)
	require.ErrorIs(t, err, ErrAlreadyMember)
}
