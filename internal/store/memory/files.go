package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) ObjectReferenceFor(ctx context.Context, kind models.OwnerKind, ownerUUID uuid.UUID, ownerSUUID string) (*models.ObjectReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.objectRefs {
		if ref.OwnerKind == kind && ref.OwnerUUID == ownerUUID {
			cp := *ref
			return &cp, nil
		}
	}
	ref := &models.ObjectReference{
		OwnerKind:  kind,
		OwnerUUID:  ownerUUID,
		OwnerSUUID: ownerSUUID,
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	store.EnsureIdentity(&ref.Base, s.now())
	cp := *ref
	s.objectRefs[ref.UUID] = &cp
	out := *ref
	return &out, nil
}

func (s *Store) GetObjectReference(ctx context.Context, id uuid.UUID) (*models.ObjectReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.objectRefs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

func (s *Store) CreateFile(ctx context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&f.Base, s.now())
	cp := *f
	s.files[f.UUID] = &cp
	return nil
}

func (s *Store) GetFileByUUID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok || f.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Store) GetFileBySUUID(ctx context.Context, suuid string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.SUUID == suuid && !f.IsDeleted() {
			cp := *f
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateFile(ctx context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[f.UUID]; !ok {
		return store.ErrNotFound
	}
	f.ModifiedAt = s.now()
	cp := *f
	s.files[f.UUID] = &cp
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *Store) ListFilesForOwner(ctx context.Context, refID uuid.UUID) ([]*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.File
	for _, f := range s.files {
		if f.IsDeleted() || f.CreatedFor != refID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}
