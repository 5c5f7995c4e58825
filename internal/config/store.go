package config

import (
	"sync"
	"sync/atomic"
)

// Snapshot is one immutable version of the settings.
type Snapshot struct {
	Version  uint64
	Settings Settings
}

// Store hands out the current Snapshot. Consumers keep the *Store and call
// Current on each use instead of caching Settings across reloads.
type Store struct {
	cur atomic.Pointer[Snapshot]

	mu          sync.Mutex
	subscribers []func(*Snapshot)
}

// NewStore creates a store at version 1.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.cur.Store(&Snapshot{Version: 1, Settings: s})
	return st
}

// Current returns the latest snapshot.
func (s *Store) Current() *Snapshot {
	return s.cur.Load()
}

// Settings is shorthand for Current().Settings.
func (s *Store) Settings() Settings {
	return s.cur.Load().Settings
}

// Version returns the current version number.
func (s *Store) Version() uint64 {
	return s.cur.Load().Version
}

// Update publishes new settings as the next version and notifies subscribers.
func (s *Store) Update(set Settings) *Snapshot {
	s.mu.Lock()
	next := &Snapshot{Version: s.cur.Load().Version + 1, Settings: set}
	s.cur.Store(next)
	subs := append([]func(*Snapshot){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers fn to run after every Update.
func (s *Store) Subscribe(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Reload re-reads the config file, validates it and publishes it. On error
// the current snapshot stays in place.
func (s *Store) Reload() (*Snapshot, []string, error) {
	if err := reread(); err != nil {
		return nil, nil, err
	}
	set, err := Decode()
	if err != nil {
		return nil, nil, err
	}
	warnings, err := set.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return s.Update(set), warnings, nil
}
