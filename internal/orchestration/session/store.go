package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjrosen/stagehook/internal/log"
)

const (
	stateFilePrefix = "workflow_state_"
	stateFileSuffix = ".json"
	lockFileSuffix  = ".lock"
)

// ErrNoActiveWorkflow is returned by Update when the session has no record.
var ErrNoActiveWorkflow = errors.New("no active workflow")

// Store reads and writes session records under a state directory.
type Store struct {
	dir    string
	locker Locker
}

// NewStore creates a Store rooted at dir. A nil locker disables locking.
func NewStore(dir string, locker Locker) *Store {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Store{dir: dir, locker: locker}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// StatePath returns the record path for a session.
func (s *Store) StatePath(session string) string {
	return filepath.Join(s.dir, stateFilePrefix+session+stateFileSuffix)
}

// LockPath returns the lock marker path for a session. It is never read for data.
func (s *Store) LockPath(session string) string {
	return filepath.Join(s.dir, stateFilePrefix+session+lockFileSuffix)
}

// Load returns the session's record. A missing, malformed or newer-schema record reads
// as no active workflow.
func (s *Store) Load(session string) (*State, bool) {
	st, err := s.read(session)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn(log.CatState, "ignoring unreadable session record", "session", session, "error", err)
		}
		return nil, false
	}
	return st, true
}

// Save replaces the session's record under the session lock.
func (s *Store) Save(st *State) error {
	if st == nil || st.SessionID == "" {
		return errors.New("saving session record: session id is required")
	}
	unlock := s.lock(st.SessionID)
	defer unlock()
	return s.write(st)
}

// Update applies mutate to the current record and writes the result, holding the session
// lock from before the read until after the write. If mutate returns an error nothing is
// written and the error is returned. The written record is returned.
func (s *Store) Update(session string, mutate func(*State) error) (*State, error) {
	unlock := s.lock(session)
	defer unlock()

	st, err := s.read(session)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoActiveWorkflow
		}
		log.Warn(log.CatState, "ignoring unreadable session record", "session", session, "error", err)
		return nil, ErrNoActiveWorkflow
	}

	if err := mutate(st); err != nil {
		return nil, err
	}
	st.SessionID = session
	if err := s.write(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Clear removes the session's record. A missing record is not an error.
func (s *Store) Clear(session string) error {
	unlock := s.lock(session)
	defer unlock()

	if err := os.Remove(s.StatePath(session)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session record: %w", err)
	}
	return nil
}

// ClearIf removes the session's record only when match accepts it, holding the session
// lock across the read and the removal. It reports whether the record was removed. A
// missing or unreadable record is left alone and reports false.
func (s *Store) ClearIf(session string, match func(*State) bool) (bool, error) {
	unlock := s.lock(session)
	defer unlock()

	st, err := s.read(session)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn(log.CatState, "ignoring unreadable session record", "session", session, "error", err)
		}
		return false, nil
	}
	if !match(st) {
		return false, nil
	}
	if err := os.Remove(s.StatePath(session)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("removing session record: %w", err)
	}
	return true, nil
}

// List returns every readable record in the state directory, most recently updated first.
func (s *Store) List() ([]*State, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state dir: %w", err)
	}

	var states []*State
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stateFilePrefix) || !strings.HasSuffix(name, stateFileSuffix) {
			continue
		}
		session := strings.TrimSuffix(strings.TrimPrefix(name, stateFilePrefix), stateFileSuffix)
		if st, ok := s.Load(session); ok {
			states = append(states, st)
		}
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Timestamp > states[j].Timestamp
	})
	return states, nil
}

// lock acquires the session lock. A failure is logged and the caller proceeds unlocked.
func (s *Store) lock(session string) func() {
	unlock, err := s.locker.Lock(s.LockPath(session))
	if err != nil {
		log.Warn(log.CatState, "session lock unavailable, proceeding unsynchronized",
			"session", session, "locker", s.locker.Name(), "error", err)
		return func() {}
	}
	return unlock
}

func (s *Store) read(session string) (*State, error) {
	data, err := os.ReadFile(s.StatePath(session))
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing session record: %w", err)
	}
	if st.Schema > SchemaVersion {
		return nil, fmt.Errorf("session record schema %d is newer than supported %d", st.Schema, SchemaVersion)
	}
	if st.WorkflowType == "" {
		return nil, errors.New("session record has no workflow")
	}
	return &st, nil
}

// write replaces the record using a temporary file and an atomic rename so readers never
// observe a partial record.
func (s *Store) write(st *State) error {
	if st.Schema == 0 {
		st.Schema = SchemaVersion
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	// Write to temporary file in the same directory (required for atomic rename)
	tmpFile, err := os.CreateTemp(s.dir, stateFilePrefix+st.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary session record: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath) // best effort cleanup
		return fmt.Errorf("writing temporary session record: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath) // best effort cleanup
		return fmt.Errorf("closing temporary session record: %w", closeErr)
	}

	if err := os.Rename(tmpPath, s.StatePath(st.SessionID)); err != nil {
		_ = os.Remove(tmpPath) // best effort cleanup
		return fmt.Errorf("renaming session record: %w", err)
	}
	return nil
}
