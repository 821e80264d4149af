package accounting

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
)

// EntityMapper records which remote entity was created for each local entity.
// Mappings are written once and never updated, so a found mapping means the
// entity must not be created remotely again.
type EntityMapper struct {
	repo   accounting.EntityMappingRepository
	locker accounting.EntityLocker
}

// NewEntityMapper creates a new EntityMapper
func NewEntityMapper(repo accounting.EntityMappingRepository, locker accounting.EntityLocker) *EntityMapper {
	return &EntityMapper{repo: repo, locker: locker}
}

// Lookup returns the remote ID mapped to a local entity
func (m *EntityMapper) Lookup(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) (string, bool, error) {
	if !kind.IsValid() {
		return "", false, accounting.ErrInvalidEntityKind
	}
	mapping, err := m.repo.FindByLocalID(ctx, kind, localID)
	if errors.Is(err, accounting.ErrMappingNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return mapping.RemoteID, true, nil
}

// LookupMany returns the remote IDs of the given local entities that are mapped
func (m *EntityMapper) LookupMany(ctx context.Context, kind accounting.EntityKind, localIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	mappings, err := m.repo.FindByLocalIDs(ctx, kind, localIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(mappings))
	for _, mapping := range mappings {
		out[mapping.LocalID] = mapping.RemoteID
	}
	return out, nil
}

// Store records the mapping and returns the remote ID that is stored after
// the call. When another writer stored a mapping first, its remote ID wins.
func (m *EntityMapper) Store(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID, remoteID, syncToken string) (string, error) {
	mapping, err := accounting.NewEntityMapping(kind, localID, remoteID)
	if err != nil {
		return "", err
	}
	mapping.RemoteSyncToken = syncToken

	stored, err := m.repo.Insert(ctx, mapping)
	if err != nil {
		return "", err
	}
	return stored.RemoteID, nil
}

// Count returns the number of mapped entities of a kind
func (m *EntityMapper) Count(ctx context.Context, kind accounting.EntityKind) (int64, error) {
	return m.repo.Count(ctx, kind)
}

// Lock serializes sync work on one local entity
func (m *EntityMapper) Lock(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) (func(), error) {
	return m.locker.Lock(ctx, accounting.MappingLockKey(kind, localID))
}
