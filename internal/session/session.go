package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/kfujino/descent/internal/events"
	"github.com/kfujino/descent/internal/lock"
	"github.com/kfujino/descent/internal/model"
	"github.com/kfujino/descent/internal/yamlutil"
)

// Checkpoint is one durable, session-scoped record of a single task's
// outcome.
type Checkpoint struct {
	TaskID     string `yaml:"task_id"`
	Summary    string `yaml:"summary"`
	CommitID   string `yaml:"commit_id"`
	RecordedAt string `yaml:"recorded_at"`
}

// journalFile is the on-disk shape of a session journal.
type journalFile struct {
	SchemaVersion int                 `yaml:"schema_version"`
	Token         string              `yaml:"token"`
	Base          string              `yaml:"base"`
	Status        model.SessionStatus `yaml:"status"`
	Checkpoints   []Checkpoint        `yaml:"checkpoints"`
}

// Manager tracks open sessions and enforces at most one per base reference.
// It is threaded through construction rather than held as a singleton.
type Manager struct {
	store      Store
	locks      *lock.MutexMap
	journalDir string
	bus        *events.Bus
	logger     *log.Logger

	// openMu guards open on its own: the per-base keyed mutexes serialize
	// sessions on one base, but the registry is shared across all bases.
	openMu sync.Mutex
	open   map[string]string // base -> token
}

// NewManager creates a session manager over the given store. bus and logger
// may be nil.
func NewManager(store Store, journalDir string, bus *events.Bus, logger *log.Logger) *Manager {
	return &Manager{
		store:      store,
		locks:      lock.NewMutexMap(),
		open:       make(map[string]string),
		journalDir: journalDir,
		bus:        bus,
		logger:     logger,
	}
}

// Options tunes a single session.
type Options struct {
	// Token overrides the generated session token.
	Token string
	// MergeThreshold is the completion ratio required to merge. Zero means
	// the 0.8 default.
	MergeThreshold float64
}

// Session is one open run's isolated change record. Checkpoint appends are
// serialized per base; the base is never observably mutated before Finish
// merges.
type Session struct {
	token   string
	base    string
	branch  string
	status  model.SessionStatus
	mgr     *Manager
	store   Store
	journal string

	threshold   float64
	checkpoints []Checkpoint
}

// Open captures base as the rollback point and creates the isolated working
// branch. It fails with ErrSessionConflict if a session is already open for
// the same base.
func (m *Manager) Open(ctx context.Context, base string, opts Options) (*Session, error) {
	m.locks.Lock(base)
	defer m.locks.Unlock(base)

	m.openMu.Lock()
	holder, held := m.open[base]
	m.openMu.Unlock()
	if held {
		return nil, fmt.Errorf("base %q held by session %s: %w", base, holder, ErrSessionConflict)
	}

	token := opts.Token
	if token == "" {
		var err error
		token, err = model.GenerateSessionToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
	}

	threshold := opts.MergeThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	s := &Session{
		token:     token,
		base:      base,
		branch:    "descent/" + token,
		status:    model.SessionOpen,
		mgr:       m,
		store:     m.store,
		threshold: threshold,
	}

	if m.journalDir != "" {
		if err := os.MkdirAll(m.journalDir, 0755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		s.journal = filepath.Join(m.journalDir, token+".yaml")
	}

	if err := m.store.CreateBranch(ctx, base, s.branch); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	m.openMu.Lock()
	m.open[base] = token
	m.openMu.Unlock()
	if err := s.writeJournal(); err != nil {
		// Roll the branch back; an unjournaled session must not stay open.
		_ = m.store.DeleteBranch(ctx, s.branch)
		m.openMu.Lock()
		delete(m.open, base)
		m.openMu.Unlock()
		return nil, err
	}

	m.log("session_opened token=%s base=%s branch=%s", token, base, s.branch)
	return s, nil
}

// Token returns the session token.
func (s *Session) Token() string { return s.token }

// Status returns the current session status.
func (s *Session) Status() model.SessionStatus { return s.status }

// Checkpoints returns a copy of the recorded checkpoints in append order.
func (s *Session) Checkpoints() []Checkpoint {
	s.mgr.locks.Lock(s.base)
	defer s.mgr.locks.Unlock(s.base)
	return append([]Checkpoint(nil), s.checkpoints...)
}

// Checkpoint durably records one task's effect as a single unit. Safe to
// call from concurrently completing dispatches; appends are serialized per
// base.
func (s *Session) Checkpoint(ctx context.Context, taskID, summary string) error {
	s.mgr.locks.Lock(s.base)
	defer s.mgr.locks.Unlock(s.base)

	if s.status != model.SessionOpen {
		return fmt.Errorf("checkpoint on %s session %s", s.status, s.token)
	}

	ck := Checkpoint{
		TaskID:     taskID,
		Summary:    summary,
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := yamlMarshalCheckpoint(ck)
	if err != nil {
		return err
	}

	commitID, err := s.store.Commit(ctx, s.branch, fmt.Sprintf("checkpoint %s", taskID), payload)
	if err != nil {
		return fmt.Errorf("commit checkpoint for %s: %w", taskID, err)
	}
	ck.CommitID = commitID

	s.checkpoints = append(s.checkpoints, ck)
	if err := s.writeJournalLocked(); err != nil {
		return err
	}

	s.mgr.publish(events.EventSessionCheckpoint, map[string]interface{}{
		"token":   s.token,
		"task_id": taskID,
		"commit":  commitID,
	})
	s.mgr.log("session_checkpoint token=%s task=%s commit=%s", s.token, taskID, commitID)
	return nil
}

// Finish closes the session: a run that completed at least the merge
// threshold's share of its tasks publishes all checkpoints atomically onto
// the base; anything below the threshold reverts and leaves the base exactly
// as it was at Open.
func (s *Session) Finish(ctx context.Context, outcome model.RunState, completionRatio float64) error {
	s.mgr.locks.Lock(s.base)
	defer s.mgr.locks.Unlock(s.base)

	if model.IsSessionTerminal(s.status) {
		return fmt.Errorf("finish on %s session %s", s.status, s.token)
	}

	s.mgr.log("session_finish token=%s outcome=%s ratio=%.2f threshold=%.2f",
		s.token, outcome, completionRatio, s.threshold)

	if completionRatio >= s.threshold {
		if err := s.transition(model.SessionMerging); err != nil {
			return err
		}
		if err := s.store.Merge(ctx, s.branch, s.base); err != nil {
			// Merge failed: fall back to revert so the base stays clean.
			s.mgr.log("session_merge_failed token=%s error=%v", s.token, err)
			return s.revertLocked(ctx, model.SessionReverted)
		}
		_ = s.store.DeleteBranch(ctx, s.branch)
		if err := s.transition(model.SessionMerged); err != nil {
			return err
		}
		s.close(model.SessionMerged, completionRatio)
		return nil
	}

	return s.revertLocked(ctx, model.SessionReverted)
}

// Abort discards the session unconditionally. Callable at any time; after a
// terminal status it is a no-op.
func (s *Session) Abort(ctx context.Context, reason string) error {
	s.mgr.locks.Lock(s.base)
	defer s.mgr.locks.Unlock(s.base)

	if model.IsSessionTerminal(s.status) {
		return nil
	}
	s.mgr.log("session_abort token=%s reason=%s", s.token, reason)
	return s.revertLocked(ctx, model.SessionAborted)
}

func (s *Session) revertLocked(ctx context.Context, terminal model.SessionStatus) error {
	if err := s.store.DeleteBranch(ctx, s.branch); err != nil {
		return fmt.Errorf("discard branch %s: %w", s.branch, err)
	}
	if err := s.transition(terminal); err != nil {
		return err
	}
	s.close(terminal, 0)
	return nil
}

func (s *Session) transition(to model.SessionStatus) error {
	if err := model.ValidateSessionTransition(s.status, to); err != nil {
		return err
	}
	s.status = to
	return nil
}

// close releases the base and records the terminal journal state. Journal
// write failures at this point are logged, not returned: the store already
// holds the authoritative outcome.
func (s *Session) close(terminal model.SessionStatus, ratio float64) {
	s.mgr.openMu.Lock()
	delete(s.mgr.open, s.base)
	s.mgr.openMu.Unlock()
	if err := s.writeJournalLocked(); err != nil {
		s.mgr.log("session_journal_write_failed token=%s error=%v", s.token, err)
	}
	s.mgr.publish(events.EventSessionFinished, map[string]interface{}{
		"token":            s.token,
		"status":           string(terminal),
		"completion_ratio": ratio,
		"checkpoints":      len(s.checkpoints),
	})
	s.mgr.log("session_finished token=%s status=%s checkpoints=%d", s.token, terminal, len(s.checkpoints))
}

func (s *Session) writeJournal() error {
	s.mgr.locks.Lock(s.base + "/journal")
	defer s.mgr.locks.Unlock(s.base + "/journal")
	return s.writeJournalLocked()
}

func (s *Session) writeJournalLocked() error {
	if s.journal == "" {
		return nil
	}
	jf := journalFile{
		SchemaVersion: 1,
		Token:         s.token,
		Base:          s.base,
		Status:        s.status,
		Checkpoints:   s.checkpoints,
	}
	if err := yamlutil.AtomicWrite(s.journal, jf); err != nil {
		return fmt.Errorf("write session journal: %w", err)
	}
	return nil
}

func (m *Manager) publish(eventType events.EventType, data map[string]interface{}) {
	if m.bus != nil {
		m.bus.Publish(eventType, data)
	}
}

func (m *Manager) log(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf("%s INFO session: %s", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func yamlMarshalCheckpoint(ck Checkpoint) ([]byte, error) {
	payload, err := yamlv3.Marshal(ck)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return payload, nil
}
