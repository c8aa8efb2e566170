// Package presence maps usernames to their live connection. A later connect
// for the same username wins; the earlier connection is orphaned, not closed.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// AvatarSource resolves a username's avatar at snapshot time.
type AvatarSource interface {
	Avatar(ctx context.Context, username string) (string, error)
}

// Entry is one online user as shown in the user list.
type Entry struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string]string // username -> connection id
	byConn  map[string]string // connection id -> username
	avatars AvatarSource
}

func New(avatars AvatarSource) *Registry {
	return &Registry{
		byUser:  make(map[string]string),
		byConn:  make(map[string]string),
		avatars: avatars,
	}
}

// SetOnline binds username to connID. If connID was bound to a different
// username, that binding is dropped first.
func (r *Registry) SetOnline(username, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok && prev != username {
		if r.byUser[prev] == connID {
			delete(r.byUser, prev)
		}
	}
	if old, ok := r.byUser[username]; ok && old != connID {
		delete(r.byConn, old)
	}
	r.byUser[username] = connID
	r.byConn[connID] = username
}

// SetOffline removes the binding held by connID. It returns the username that
// went offline, or false when connID was never bound or was superseded.
func (r *Registry) SetOffline(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if r.byUser[username] != connID {
		return "", false
	}
	delete(r.byUser, username)
	return username, true
}

// Lookup returns the live connection for username.
func (r *Registry) Lookup(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[username]
	return id, ok
}

// Len returns the number of online usernames.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Snapshot lists every online user sorted by name, with avatars looked up now.
// Entries whose avatar lookup fails are kept without an avatar; the first
// lookup error is returned alongside the full list.
func (r *Registry) Snapshot(ctx context.Context) ([]Entry, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		names = append(names, u)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	entries := make([]Entry, 0, len(names))
	var firstErr error
	for _, u := range names {
		e := Entry{Username: u}
		if r.avatars != nil {
			avatar, err := r.avatars.Avatar(ctx, u)
			switch {
			case err == nil:
				e.Avatar = avatar
			case firstErr == nil:
				firstErr = fmt.Errorf("presence snapshot: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, firstErr
}
