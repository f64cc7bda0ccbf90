package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// StateVersion is the format version written to state files.
const StateVersion = 1

// ErrNewerVersion is returned for a state file written by a newer release.
var ErrNewerVersion = errors.New("state file version not supported")

// NodeState is the JSON document kept in the state file.
type NodeState struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	// EUI64 is the owner of the counters. A store booted with a different
	// EUI-64 starts over.
	EUI64 string `json:"eui64,omitempty"`

	BootCount uint32 `json:"boot_count"`
	Lifetime  uint32 `json:"lifetime"` // seconds

	// DisabledFeatures holds the UUIDs of features switched off at runtime.
	DisabledFeatures []string `json:"disabled_features,omitempty"`
}

func (s NodeState) clone() NodeState {
	s.DisabledFeatures = slices.Clone(s.DisabledFeatures)
	return s
}

// Option configures a NodeStateStore.
type Option func(*NodeStateStore)

// WithClock sets the clock used for SavedAt.
func WithClock(c clock.Clock) Option {
	return func(s *NodeStateStore) { s.clock = c }
}

// NodeStateStore keeps a NodeState in memory and mirrors every change to
// a JSON file. Writes go through a synced temporary file and a rename, so
// a crash leaves either the old or the new state on disk.
type NodeStateStore struct {
	path  string
	clock clock.Clock

	mu    sync.Mutex
	state NodeState
}

// NewNodeStateStore returns a store for path. Nothing is read until Load
// or Boot.
func NewNodeStateStore(path string, opts ...Option) *NodeStateStore {
	s := &NodeStateStore{path: path, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the state file path.
func (s *NodeStateStore) Path() string {
	return s.path
}

// Load reads the state file into the store and returns a copy. A missing
// file yields the zero state and ok == false.
func (s *NodeStateStore) Load() (state NodeState, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err = s.read()
	return s.state.clone(), ok, err
}

func (s *NodeStateStore) read() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.state = NodeState{}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var st NodeState
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if st.Version > StateVersion {
		return false, fmt.Errorf("%s: %w: %d > %d", s.path, ErrNewerVersion, st.Version, StateVersion)
	}
	s.state = st
	return true, nil
}

// Boot loads the state file, counts one more boot for eui64 and saves the
// result, which it returns.
func (s *NodeStateStore) Boot(eui64 string) (NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(); err != nil {
		return NodeState{}, err
	}
	if s.state.EUI64 != "" && s.state.EUI64 != eui64 {
		s.state = NodeState{}
	}
	s.state.EUI64 = eui64
	s.state.BootCount++

	if err := s.write(); err != nil {
		return NodeState{}, err
	}
	return s.state.clone(), nil
}

// Update applies fn to the in-memory state and saves it. Concurrent
// updates are serialized.
func (s *NodeStateStore) Update(fn func(*NodeState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)
	return s.write()
}

// Save replaces the state and writes it.
func (s *NodeStateStore) Save(state NodeState) error {
	return s.Update(func(st *NodeState) { *st = state.clone() })
}

func (s *NodeStateStore) write() (err error) {
	s.state.Version = StateVersion
	s.state.SavedAt = s.clock.Now().UTC()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp.Name()))
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if _, err := tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear forgets the state and removes the file.
func (s *NodeStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = NodeState{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
