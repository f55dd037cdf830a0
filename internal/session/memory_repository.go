package session

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in a process-local map. It mirrors the
// compare-and-set semantics of the Postgres repository so tests exercise the
// same arbitration, and hands out copies so callers cannot mutate a stored
// row without going through AdvanceProgress or SetStatus.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*UploadSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*UploadSession),
	}
}

func (r *MemoryRepository) Insert(s *UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.Key]; exists {
		return fmt.Errorf("upload session already exists: %s", s.Key)
	}

	stored := *s
	r.sessions[s.Key] = &stored
	return nil
}

func (r *MemoryRepository) Get(key string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[key]
	if !exists {
		return nil, ErrNotFound
	}

	result := *s
	return &result, nil
}

func (r *MemoryRepository) AdvanceProgress(key string, fromOffset, toOffset int64, chunkIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[key]
	if !exists {
		return ErrNotFound
	}
	if s.Status != StatusActive {
		return ErrStaleOffset
	}
	if s.Offset != fromOffset {
		return ErrStaleOffset
	}

	s.Offset = toOffset
	s.ChunkIndex = chunkIndex
	s.UpdatedAt = time.Now().Unix()
	return nil
}

func (r *MemoryRepository) SetStatus(key string, to Status, allowedFrom ...Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[key]
	if !exists {
		return ErrNotFound
	}

	allowed := false
	for _, from := range allowedFrom {
		if s.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrStatusConflict
	}

	s.Status = to
	s.UpdatedAt = time.Now().Unix()
	return nil
}

func (r *MemoryRepository) Delete(key string, allowedFrom ...Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[key]
	if !exists {
		return ErrNotFound
	}

	if len(allowedFrom) > 0 {
		allowed := false
		for _, from := range allowedFrom {
			if s.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrStatusConflict
		}
	}

	delete(r.sessions, key)
	return nil
}

func (r *MemoryRepository) ListExpired(cutoff int64, statuses ...Status) ([]*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*UploadSession
	for _, s := range r.sessions {
		if s.UpdatedAt >= cutoff {
			continue
		}
		for _, status := range statuses {
			if s.Status == status {
				copied := *s
				result = append(result, &copied)
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt < result[j].UpdatedAt
	})

	return result, nil
}
