package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// MemoryStore is an in-memory Store used in tests and single-shot CLI runs.
type MemoryStore struct {
	mu         sync.Mutex
	jobs       map[string]model.Job
	pending    []string // front at index 0, oldest at the end
	processing string
}

// NewMemoryStore creates an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]model.Job)}
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := job
	return &cp, nil
}

func (s *MemoryStore) PutJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) PushPending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]string{id}, s.pending...)
	return nil
}

func (s *MemoryStore) OldestPending(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", nil
	}
	return s.pending[len(s.pending)-1], nil
}

func (s *MemoryStore) RemovePending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = slices.DeleteFunc(s.pending, func(p string) bool { return p == id })
	return nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for i := len(s.pending) - 1; i >= 0; i-- {
		out = append(out, s.pending[i])
	}
	return out, nil
}

func (s *MemoryStore) Processing(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing, nil
}

func (s *MemoryStore) SetProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing != "" && s.processing != id {
		return eris.Errorf("queue: job %s already processing", s.processing)
	}
	s.processing = id
	return nil
}

func (s *MemoryStore) ClearProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing == id {
		s.processing = ""
	}
	return nil
}

func (s *MemoryStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.ExpiresAt != nil && job.ExpiresAt.Before(now) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) Close() error { return nil }
