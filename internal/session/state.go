// Package session holds the in-memory authentication state of the client:
// the current user and the set of granted permission scopes.
package session

import (
	"slices"
	"sync"

	"github.com/wefram/sysui/pkg/sysui/types"
)

// Snapshot is an immutable view of the state at one point in time.
type Snapshot struct {
	User        *types.UserSummary
	Permissions []string
	Version     uint64
}

// Authenticated reports whether the snapshot has a user.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// State is the shared authentication state.
//
// User and Permissions always change together; observers never see a user
// paired with another user's permissions.
type State struct {
	mu          sync.RWMutex
	user        *types.UserSummary
	permissions []string
	version     uint64

	// writeMu orders mutations together with their delivery.
	writeMu sync.Mutex

	subMu       sync.Mutex
	subscribers map[uint64]func(Snapshot)
	nextSub     uint64
}

// New returns an unauthenticated State.
func New() *State {
	return &State{
		permissions: []string{},
		subscribers: make(map[uint64]func(Snapshot)),
	}
}

// Replace atomically sets the user and permissions. A nil user clears the
// state.
func (s *State) Replace(user *types.UserSummary, permissions []string) {
	var userCopy *types.UserSummary
	perms := []string{}
	if user != nil {
		u := *user
		userCopy = &u
		perms = append(perms, permissions...)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.user = userCopy
	s.permissions = perms
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Clear removes the user and all permissions.
func (s *State) Clear() {
	s.Replace(nil, nil)
}

// Authenticated reports whether a user is present.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the current user, or nil.
func (s *State) User() *types.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// DisplayName returns "First Last" for the current user, or "" when logged out.
func (s *State) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.DisplayName()
}

// Permissions returns a copy of the granted scopes.
func (s *State) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permissions)
}

// Version increments on every mutation.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Permitted reports whether every required scope is held. An empty list is
// always permitted. Otherwise the user must be authenticated, and each scope
// must match a granted permission or the implicit "authenticated" scope
// exactly. There is no wildcard or hierarchy matching.
func (s *State) Permitted(requires ...string) bool {
	if len(requires) == 0 {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return false
	}
	for _, scope := range requires {
		if scope == types.ImplicitScopeAuthenticated {
			continue
		}
		if !slices.Contains(s.permissions, scope) {
			return false
		}
	}
	return true
}

// Subscribe registers fn to be called after every mutation. fn runs on the
// mutating goroutine, outside the state lock, and sees versions in order.
// fn may read the State but must not mutate it. The returned func
// unsubscribes.
func (s *State) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *State) snapshotLocked() Snapshot {
	var user *types.UserSummary
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return Snapshot{
		User:        user,
		Permissions: slices.Clone(s.permissions),
		Version:     s.version,
	}
}

func (s *State) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
