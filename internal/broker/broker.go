// Package broker routes inbound chat events to the store and the registries
// and fans the results out to connections.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chathub/internal/logger"
	"chathub/internal/metrics"
	"chathub/internal/presence"
	"chathub/internal/rooms"
	"chathub/internal/store"
)

var (
	// ErrMalformed marks a frame that could not be decoded or lacks a
	// required field. The frame is dropped and the connection stays open.
	ErrMalformed = errors.New("malformed event")
	// ErrUnknownEvent marks a frame whose type has no handler.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrClosed marks a frame from a connection that is not registered.
	ErrClosed = errors.New("connection closed")
)

// Conn is the outbound side of a client connection.
type Conn interface {
	ID() string
	// User is the identity bound by the transport, or empty.
	User() string
	// Send enqueues ev without blocking. It returns false if ev was dropped.
	Send(ev Event) bool
}

// MessageStore is the persistence the broker needs.
type MessageStore interface {
	Append(ctx context.Context, conv store.Conversation, sender, body, image string, replyTo *int64) (store.Message, error)
	ListRoom(ctx context.Context, room string, limit int) ([]store.Message, error)
	ListDM(ctx context.Context, a, b string, limit int) ([]store.Message, error)
	Edit(ctx context.Context, id int64, requester, body string) (store.Message, store.Result, error)
	Delete(ctx context.Context, id int64, requester string) (store.Result, error)
	ToggleReaction(ctx context.Context, messageID int64, username, emoji string) (bool, error)
	ReactionCounts(ctx context.Context, messageID int64) (map[string]int, error)
	Pin(ctx context.Context, messageID int64, room string) (store.Message, bool, error)
	Pinned(ctx context.Context, room string, limit int) ([]store.Message, error)
	Search(ctx context.Context, room, query string, limit int) ([]store.Message, error)
}

// Directory answers user lookups.
type Directory interface {
	Exists(ctx context.Context, username string) (bool, error)
	Avatar(ctx context.Context, username string) (string, error)
	ListUsers(ctx context.Context) ([]store.Profile, error)
}

type Options struct {
	DefaultRoom string
	// HistoryLimit caps room and DM history loads. Zero uses the store default.
	HistoryLimit int
}

type Broker struct {
	store    MessageStore
	dir      Directory
	presence *presence.Registry
	rooms    *rooms.Registry
	sessions *sessionTable
	locks    *keyedMutex

	defaultRoom  string
	historyLimit int
}

func New(ms MessageStore, dir Directory, pr *presence.Registry, rr *rooms.Registry, opts Options) *Broker {
	room := opts.DefaultRoom
	if room == "" {
		room = store.DefaultRoom
	}
	return &Broker{
		store:        ms,
		dir:          dir,
		presence:     pr,
		rooms:        rr,
		sessions:     newSessionTable(),
		locks:        newKeyedMutex(),
		defaultRoom:  room,
		historyLimit: opts.HistoryLimit,
	}
}

// Connect registers c for global broadcasts. Presence and rooms are untouched
// until c identifies itself.
func (b *Broker) Connect(c Conn) {
	if !b.sessions.add(c) {
		return
	}
	metrics.Connections.Inc()
	logger.Debug("connection registered", "conn", c.ID(), "user", c.User())
}

// Disconnect drops c from presence and every room and broadcasts the new user
// list. Only the first call for a connection has any effect.
func (b *Broker) Disconnect(ctx context.Context, c Conn) {
	s, ok := b.sessions.remove(c.ID())
	if !ok {
		return
	}
	metrics.Connections.Dec()

	user, wentOffline := b.presence.SetOffline(c.ID())
	left := b.rooms.LeaveAll(c.ID())
	metrics.OnlineUsers.Set(float64(b.presence.Len()))
	logger.Debug("connection closed", "conn", c.ID(), "user", s.user, "offline", wentOffline, "rooms", left)
	if wentOffline {
		logger.Info("user offline", "user", user)
	}

	b.broadcastUserList(ctx, c)
}

// Handle processes one inbound frame from c. It returns an error only when
// the frame was rejected; failures while serving the request are reported to
// c as an error event.
func (b *Broker) Handle(ctx context.Context, c Conn, f Frame) error {
	if _, ok := b.sessions.get(c.ID()); !ok {
		metrics.Dropped.WithLabelValues("closed").Inc()
		return ErrClosed
	}

	var in inbound
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, &in); err != nil {
			metrics.Dropped.WithLabelValues("malformed").Inc()
			return fmt.Errorf("%w: %s: %v", ErrMalformed, f.Type, err)
		}
	}

	var err error
	switch f.Type {
	case EventJoinRoom:
		err = b.joinRoom(ctx, c, in)
	case EventSendMessage:
		err = b.sendMessage(ctx, c, in)
	case EventSendDM:
		err = b.sendDM(ctx, c, in)
	case EventEditMessage:
		err = b.editMessage(ctx, c, in)
	case EventDeleteMessage:
		err = b.deleteMessage(ctx, c, in)
	case EventReact:
		err = b.react(ctx, c, in)
	case EventRequestReactions:
		err = b.requestReactions(ctx, c, in)
	case EventPinMessage:
		err = b.pinMessage(ctx, c, in)
	case EventTyping, EventStopTyping:
		err = b.typing(c, f.Type, in)
	case EventLoadRoomMessages:
		err = b.loadRoomMessages(ctx, c, in)
	case EventLoadDM:
		err = b.loadDM(ctx, c, in)
	case EventSearch:
		err = b.search(ctx, c, in)
	case EventGetPinned:
		err = b.getPinned(ctx, c, in)
	case EventFetchInitial:
		err = b.fetchInitial(ctx, c)
	case EventPresence:
		err = b.identify(ctx, c, in)
	default:
		metrics.Dropped.WithLabelValues("unknown").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
	if errors.Is(err, ErrMalformed) {
		metrics.Dropped.WithLabelValues("malformed").Inc()
		return err
	}
	metrics.Events.WithLabelValues(f.Type).Inc()
	return nil
}

func missing(event, field string) error {
	return fmt.Errorf("%w: %s: %s required", ErrMalformed, event, field)
}

// identity prefers the transport-bound user over the claimed one.
func identity(c Conn, claimed string) string {
	if u := c.User(); u != "" {
		return u
	}
	return claimed
}

// requester is the user a connection acts as for owner-only mutations.
func (b *Broker) requester(c Conn) string {
	if u := c.User(); u != "" {
		return u
	}
	return b.sessions.userOf(c.ID())
}

func (b *Broker) room(name string) string {
	if name == "" {
		return b.defaultRoom
	}
	return name
}

// fail reports a server-side failure to c and nobody else.
func (b *Broker) fail(c Conn, op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	logger.Error("request failed", "conn", c.ID(), "op", op, "err", err)
	b.deliver(c, Event{Type: EventError, Data: ErrorPayload{Code: "internal", Message: "request failed"}})
	return nil
}

func (b *Broker) deliver(c Conn, ev Event) {
	if c.Send(ev) {
		metrics.FanoutFrames.Inc()
		return
	}
	metrics.Dropped.WithLabelValues("send_buffer").Inc()
	logger.Warn("outbound frame dropped", "conn", c.ID(), "type", ev.Type)
}

func (b *Broker) deliverTo(connID string, ev Event) {
	if c, ok := b.sessions.get(connID); ok {
		b.deliver(c, ev)
	}
}

func (b *Broker) toRoom(room string, ev Event) {
	for _, id := range b.rooms.Members(room) {
		b.deliverTo(id, ev)
	}
}

func (b *Broker) broadcast(ev Event) {
	for _, c := range b.sessions.snapshot() {
		b.deliver(c, ev)
	}
}

func (b *Broker) broadcastUserList(ctx context.Context, origin Conn) {
	users, err := b.presence.Snapshot(ctx)
	if err != nil {
		// Snapshot still lists every user; only the failed avatars are blank.
		metrics.StoreErrors.WithLabelValues("user_list").Inc()
		logger.Error("user list avatars", "conn", origin.ID(), "err", err)
	}
	b.broadcast(Event{Type: EventUserList, Data: users})
}

func (b *Broker) broadcastRooms(ctx context.Context, origin Conn) error {
	known, err := b.rooms.KnownRooms(ctx)
	if err != nil {
		return b.fail(origin, "rooms_list", err)
	}
	b.broadcast(Event{Type: EventRoomsList, Data: known})
	return nil
}

func (b *Broker) bindUser(c Conn, user string) {
	b.sessions.bind(c.ID(), user)
	b.presence.SetOnline(user, c.ID())
	metrics.OnlineUsers.Set(float64(b.presence.Len()))
}

func orEmpty(msgs []store.Message) []store.Message {
	if msgs == nil {
		return []store.Message{}
	}
	return msgs
}

// Connections reports how many connections are registered.
func (b *Broker) Connections() int {
	return b.sessions.len()
}
