package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&user.Base, s.now())
	cp := *user
	s.users[user.UUID] = &cp
	return nil
}

func (s *Store) GetUserByUUID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByAuthToken(ctx context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token == "" {
		return nil, store.ErrNotFound
	}
	for _, u := range s.users {
		if u.AuthToken == token && !u.IsDeleted() {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email && !u.IsDeleted() {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Unique per (user, object) among undeleted rows.
	if m.UserUUID != nil {
		for _, existing := range s.memberships {
			if existing.IsDeleted() || existing.UserUUID == nil {
				continue
			}
			if *existing.UserUUID == *m.UserUUID && existing.ObjectUUID == m.ObjectUUID {
				return store.ErrConflict
			}
		}
	}
	store.EnsureIdentity(&m.Base, s.now())
	cp := *m
	s.memberships[m.UUID] = &cp
	return nil
}

func (s *Store) GetMembershipBySUUID(ctx context.Context, suuid string) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.SUUID == suuid && !m.IsDeleted() {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateMembership(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[m.UUID]; !ok {
		return store.ErrNotFound
	}
	m.ModifiedAt = s.now()
	cp := *m
	s.memberships[m.UUID] = &cp
	return nil
}

func (s *Store) SoftDeleteMembership(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok || m.IsDeleted() {
		return store.ErrNotFound
	}
	now := s.now()
	m.DeletedAt = &now
	m.ModifiedAt = now
	return nil
}

func (s *Store) MembershipsForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]string)
	for _, m := range s.memberships {
		if m.IsDeleted() || m.UserUUID == nil || *m.UserUUID != userID {
			continue
		}
		out[m.ObjectUUID] = m.RoleCode
	}
	return out, nil
}

func (s *Store) MembershipsForWorkspace(ctx context.Context, workspaceID uuid.UUID, withInvitations bool) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for _, m := range s.memberships {
		if m.IsDeleted() || m.ObjectUUID != workspaceID {
			continue
		}
		if m.IsInvitation() && !withInvitations {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}
