package session

import (
	"context"
	"fmt"
	"sync"
)

// MemCommit is one committed unit in a MemStore branch.
type MemCommit struct {
	ID      string
	Message string
	Payload []byte
}

type memBranch struct {
	base    string
	commits []MemCommit
}

// MemStore is an in-memory Store used by tests and dry runs. Base refs hold
// published history; branches hold unpublished commits until merged.
type MemStore struct {
	mu       sync.Mutex
	bases    map[string][]MemCommit
	branches map[string]*memBranch
	seq      int
}

func NewMemStore(bases ...string) *MemStore {
	s := &MemStore{
		bases:    make(map[string][]MemCommit),
		branches: make(map[string]*memBranch),
	}
	for _, b := range bases {
		s.bases[b] = nil
	}
	return s
}

func (s *MemStore) CreateBranch(_ context.Context, base, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bases[base]; !ok {
		return fmt.Errorf("unknown base ref %q", base)
	}
	if _, ok := s.branches[branch]; ok {
		return fmt.Errorf("branch %q already exists", branch)
	}
	s.branches[branch] = &memBranch{base: base}
	return nil
}

func (s *MemStore) Commit(_ context.Context, branch, message string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[branch]
	if !ok {
		return "", fmt.Errorf("unknown branch %q", branch)
	}
	s.seq++
	id := fmt.Sprintf("mem-%06d", s.seq)
	b.commits = append(b.commits, MemCommit{ID: id, Message: message, Payload: append([]byte(nil), payload...)})
	return id, nil
}

func (s *MemStore) Merge(_ context.Context, branch, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[branch]
	if !ok {
		return fmt.Errorf("unknown branch %q", branch)
	}
	if b.base != base {
		return fmt.Errorf("branch %q was created from %q, not %q", branch, b.base, base)
	}
	if _, ok := s.bases[base]; !ok {
		return fmt.Errorf("unknown base ref %q", base)
	}
	s.bases[base] = append(s.bases[base], b.commits...)
	return nil
}

func (s *MemStore) DeleteBranch(_ context.Context, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[branch]; !ok {
		return fmt.Errorf("unknown branch %q", branch)
	}
	delete(s.branches, branch)
	return nil
}

// BaseHistory returns a copy of the published commits on a base ref.
func (s *MemStore) BaseHistory(base string) []MemCommit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MemCommit(nil), s.bases[base]...)
}

// BranchExists reports whether the branch is still present.
func (s *MemStore) BranchExists(branch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.branches[branch]
	return ok
}
