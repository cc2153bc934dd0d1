package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const gitCommandTimeout = 10 * time.Second

// GitStore implements Store against a real git repository. Branch work
// happens in a detached worktree so the repository's checkout is never
// disturbed; the base ref only moves at Merge.
type GitStore struct {
	repoRoot string
	timeout  time.Duration

	mu        sync.Mutex
	worktrees map[string]string // branch -> worktree dir
}

// NewGitStore creates a store for the repository at repoRoot.
func NewGitStore(repoRoot string) *GitStore {
	return &GitStore{
		repoRoot:  repoRoot,
		timeout:   gitCommandTimeout,
		worktrees: make(map[string]string),
	}
}

func (s *GitStore) CreateBranch(ctx context.Context, base, branch string) error {
	dir, err := os.MkdirTemp("", "descent-wt-*")
	if err != nil {
		return fmt.Errorf("create worktree dir: %w", err)
	}
	// MkdirTemp created it; git worktree add wants to create it itself.
	if err := os.Remove(dir); err != nil {
		return fmt.Errorf("prepare worktree dir: %w", err)
	}

	if _, err := s.git(ctx, s.repoRoot, "worktree", "add", "-b", branch, dir, base); err != nil {
		return fmt.Errorf("create branch %s from %s: %w", branch, base, err)
	}

	s.mu.Lock()
	s.worktrees[branch] = dir
	s.mu.Unlock()
	return nil
}

func (s *GitStore) Commit(ctx context.Context, branch, message string, payload []byte) (string, error) {
	dir, err := s.worktreeFor(branch)
	if err != nil {
		return "", err
	}

	ckDir := filepath.Join(dir, ".descent", "checkpoints")
	if err := os.MkdirAll(ckDir, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	name := fmt.Sprintf("%d.yaml", time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(ckDir, name), payload, 0644); err != nil {
		return "", fmt.Errorf("write checkpoint payload: %w", err)
	}

	if _, err := s.git(ctx, dir, "add", "-A"); err != nil {
		return "", fmt.Errorf("stage checkpoint: %w", err)
	}
	if _, err := s.git(ctx, dir, "commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}

	out, err := s.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve commit id: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (s *GitStore) Merge(ctx context.Context, branch, base string) error {
	current, err := s.git(ctx, s.repoRoot, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return fmt.Errorf("resolve current branch: %w", err)
	}
	if strings.TrimSpace(current) != base {
		return fmt.Errorf("repository checkout is %q, expected base %q", strings.TrimSpace(current), base)
	}
	if _, err := s.git(ctx, s.repoRoot, "merge", "--no-ff", "--no-edit", branch); err != nil {
		// A conflicted merge leaves MERGE_HEAD and conflict markers behind;
		// unwind it so the caller's fallback revert finds a clean checkout.
		_, _ = s.git(ctx, s.repoRoot, "merge", "--abort")
		return fmt.Errorf("merge %s into %s: %w", branch, base, err)
	}
	return nil
}

func (s *GitStore) DeleteBranch(ctx context.Context, branch string) error {
	s.mu.Lock()
	dir, ok := s.worktrees[branch]
	delete(s.worktrees, branch)
	s.mu.Unlock()

	if ok {
		if _, err := s.git(ctx, s.repoRoot, "worktree", "remove", "--force", dir); err != nil {
			return fmt.Errorf("remove worktree for %s: %w", branch, err)
		}
	}
	if _, err := s.git(ctx, s.repoRoot, "branch", "-D", branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

func (s *GitStore) worktreeFor(branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, ok := s.worktrees[branch]
	if !ok {
		return "", fmt.Errorf("no worktree for branch %q (branch not created by this store)", branch)
	}
	return dir, nil
}

func (s *GitStore) git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
