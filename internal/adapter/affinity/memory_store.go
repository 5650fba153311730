package affinity

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

// MemoryStore keeps entries in process. Frontend ids cannot contain a NUL
// so it is safe as the key separator.
type MemoryStore struct {
	entries *xsync.Map[string, domain.AffinityEntry]
}

var _ ports.AffinityStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: xsync.NewMap[string, domain.AffinityEntry]()}
}

func memoryKey(frontendID, key string) string {
	return frontendID + "\x00" + key
}

func (s *MemoryStore) Get(_ context.Context, frontendID, key string) (*domain.AffinityEntry, bool, error) {
	e, ok := s.entries.Load(memoryKey(frontendID, key))
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (s *MemoryStore) Put(_ context.Context, entry *domain.AffinityEntry) error {
	s.entries.Store(memoryKey(entry.FrontendID, entry.Key), *entry)
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, frontendID, key, backendID string, at time.Time) error {
	s.entries.Compute(memoryKey(frontendID, key), func(old domain.AffinityEntry, loaded bool) (domain.AffinityEntry, xsync.ComputeOp) {
		if !loaded || old.BackendID != backendID {
			return old, xsync.CancelOp
		}
		old.LastUsed = at
		return old, xsync.UpdateOp
	})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, frontendID, key string) error {
	s.entries.Delete(memoryKey(frontendID, key))
	return nil
}

func (s *MemoryStore) DeleteByBackend(_ context.Context, backendID string) (int, error) {
	removed := 0
	s.entries.Range(func(k string, e domain.AffinityEntry) bool {
		if e.BackendID != backendID {
			return true
		}
		// the key may have been rebound since Range saw it
		s.entries.Compute(k, func(old domain.AffinityEntry, loaded bool) (domain.AffinityEntry, xsync.ComputeOp) {
			if loaded && old.BackendID == backendID {
				removed++
				return old, xsync.DeleteOp
			}
			return old, xsync.CancelOp
		})
		return true
	})
	return removed, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.AffinityEntry, error) {
	out := make([]domain.AffinityEntry, 0, s.entries.Size())
	s.entries.Range(func(_ string, e domain.AffinityEntry) bool {
		out = append(out, e)
		return true
	})
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	return s.entries.Size(), nil
}

func (s *MemoryStore) Close() error {
	s.entries.Clear()
	return nil
}

func sortEntries(entries []domain.AffinityEntry) {
	slices.SortFunc(entries, func(a, b domain.AffinityEntry) int {
		if c := strings.Compare(a.FrontendID, b.FrontendID); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
}
