package broker

import "sync"

// session is one registered connection and the username it last claimed.
type session struct {
	conn Conn
	user string
}

// sessionTable holds every connection eligible for global broadcasts.
type sessionTable struct {
	mu    sync.RWMutex
	conns map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		conns: make(map[string]*session),
	}
}

func (t *sessionTable) add(c Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.conns[c.ID()]; ok {
		return false
	}
	t.conns[c.ID()] = &session{conn: c}
	return true
}

func (t *sessionTable) remove(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.conns[id]
	if ok {
		delete(t.conns, id)
	}
	return s, ok
}

func (t *sessionTable) get(id string) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.conns[id]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

// bind records the username claimed on connection id. It survives presence
// being superseded by a newer connection for the same user.
func (t *sessionTable) bind(id, user string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.conns[id]; ok {
		s.user = user
	}
}

func (t *sessionTable) userOf(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.conns[id]; ok {
		return s.user
	}
	return ""
}

func (t *sessionTable) snapshot() []Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]Conn, 0, len(t.conns))
	for _, s := range t.conns {
		conns = append(conns, s.conn)
	}
	return conns
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
