// Package rooms tracks which connections are subscribed to which room.
package rooms

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// RoomSource lists rooms that exist in message history.
type RoomSource interface {
	DistinctRoomNames(ctx context.Context, recentLimit int) ([]string, error)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room -> connection ids
	source  RoomSource
}

func New(source RoomSource) *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
		source:  source,
	}
}

// Join subscribes connID to room. A connection may be in several rooms.
func (r *Registry) Join(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.members[room]
	if subs == nil {
		subs = make(map[string]struct{})
		r.members[room] = subs
	}
	subs[connID] = struct{}{}
}

// LeaveAll removes connID from every room and returns the rooms it left.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []string
	for room, subs := range r.members {
		if _, ok := subs[connID]; ok {
			delete(subs, connID)
			left = append(left, room)
			if len(subs) == 0 {
				delete(r.members, room)
			}
		}
	}
	sort.Strings(left)
	return left
}

// Members returns a snapshot of the connections in room.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.members[room]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

// LiveRooms lists rooms with at least one member, sorted.
func (r *Registry) LiveRooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.members))
	for room := range r.members {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// KnownRooms is the union of rooms from message history and live rooms.
// History order is kept; live-only rooms follow, sorted.
func (r *Registry) KnownRooms(ctx context.Context) ([]string, error) {
	var rooms []string
	if r.source != nil {
		var err error
		rooms, err = r.source.DistinctRoomNames(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("known rooms: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(rooms))
	out := make([]string, 0, len(rooms))
	for _, room := range rooms {
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		out = append(out, room)
	}
	for _, room := range r.LiveRooms() {
		if _, ok := seen[room]; !ok {
			out = append(out, room)
		}
	}
	return out, nil
}
