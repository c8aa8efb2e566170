package broker

import (
	"strconv"
	"sync"
)

// keyedMutex serializes work per key (a room or a DM pair). Entries are
// reference counted and dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l := k.locks[key]
	if l == nil {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func roomKey(room string) string { return "room:" + room }

func pinsKey(room string) string { return "pins:" + room }

func messageKey(id int64) string { return "msg:" + strconv.FormatInt(id, 10) }

// dmKey is the same for both directions of a pair.
func dmKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + "\x00" + b
}
