package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/internal/presence"
	"chathub/internal/rooms"
	"chathub/internal/store"
)

type fakeConn struct {
	id   string
	user string
	full bool

	mu     sync.Mutex
	events []Event
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) User() string { return f.user }

func (f *fakeConn) Send(ev Event) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) of(typ string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	broker *Broker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "chat.sqlite"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := New(st, st, presence.New(st), rooms.New(st), Options{})
	return &harness{t: t, ctx: ctx, store: st, broker: b}
}

func (h *harness) connect(id string) *fakeConn {
	c := newConn(id)
	h.broker.Connect(c)
	return c
}

func (h *harness) send(c Conn, typ string, data any) error {
	h.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(h.t, err)
	return h.broker.Handle(h.ctx, c, Frame{Type: typ, Data: raw})
}

func (h *harness) must(c Conn, typ string, data any) {
	h.t.Helper()
	require.NoError(h.t, h.send(c, typ, data))
}

// body returns the stored body of a Lobby message.
func (h *harness) body(id int64) string {
	h.t.Helper()
	msgs, err := h.store.ListRoom(h.ctx, "Lobby", 0)
	require.NoError(h.t, err)
	for _, m := range msgs {
		if m.ID == id {
			return m.Body
		}
	}
	require.Failf(h.t, "message not found", "id %d", id)
	return ""
}

type obj map[string]any

func TestJoinRoomSequence(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")

	h.must(alice, EventJoinRoom, obj{"username": "alice"})

	assert.Equal(t, []string{EventLoadRoomMessages, EventNewMessageRoom, EventUserList, EventRoomsList}, alice.types())

	history := alice.of(EventLoadRoomMessages)[0].Data.([]store.Message)
	assert.Empty(t, history, "history is taken before the join message")

	joined := alice.of(EventNewMessageRoom)[0].Data.(MessageView)
	assert.Equal(t, store.SystemSender, joined.Sender)
	assert.Equal(t, "alice joined Lobby", joined.Body)
	assert.Equal(t, "Lobby", joined.Room)

	users := alice.of(EventUserList)[0].Data.([]presence.Entry)
	assert.Equal(t, []presence.Entry{{Username: "alice"}}, users)
	assert.Equal(t, []string{"Lobby"}, alice.of(EventRoomsList)[0].Data)
}

func TestJoinBroadcastsListsToEveryone(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	watcher := h.connect("c-watch")

	h.must(alice, EventJoinRoom, obj{"username": "alice", "room": "Go"})

	assert.Empty(t, watcher.of(EventNewMessageRoom), "not a member of Go")
	require.Len(t, watcher.of(EventUserList), 1)
	require.Len(t, watcher.of(EventRoomsList), 1)
	assert.Equal(t, []string{"Lobby", "Go"}, watcher.of(EventRoomsList)[0].Data)
}

func TestRoomMessageReachesMembers(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	outsider := h.connect("c-out")
	h.broker.rooms.Join("Lobby", bob.ID())

	h.must(alice, EventJoinRoom, obj{"username": "alice", "room": "Lobby"})
	h.must(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": "hello @B"})

	got := bob.of(EventNewMessageRoom)
	require.Len(t, got, 2)
	msg := got[1].Data.(MessageView)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hello @B", msg.Body)
	assert.Empty(t, outsider.of(EventNewMessageRoom))

	stored, err := h.store.ListRoom(h.ctx, "Lobby", 500)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "alice joined Lobby", stored[0].Body)
	assert.Equal(t, "hello @B", stored[1].Body)
	assert.Greater(t, stored[1].ID, stored[0].ID)
	assert.Equal(t, msg.ID, stored[1].ID)
}

func TestRoomMessageCarriesAvatar(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.CreateUser(h.ctx, "alice", "secret", "data:image/png;base64,AAAA")
	require.NoError(t, err)
	alice := h.connect("c-alice")
	h.must(alice, EventJoinRoom, obj{"username": "alice"})
	alice.reset()

	h.must(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": "hi", "reply_to": 99})

	msg := alice.of(EventNewMessageRoom)[0].Data.(MessageView)
	assert.Equal(t, "data:image/png;base64,AAAA", msg.Avatar)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, int64(99), *msg.ReplyTo)
}

func TestSameConnectionSendsKeepOrder(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	h.must(alice, EventJoinRoom, obj{"username": "alice"})
	h.must(bob, EventJoinRoom, obj{"username": "bob"})
	bob.reset()

	for i := 0; i < 20; i++ {
		h.must(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": fmt.Sprintf("m%02d", i)})
	}

	got := bob.of(EventNewMessageRoom)
	require.Len(t, got, 20)
	var last int64
	for i, ev := range got {
		m := ev.Data.(MessageView)
		assert.Equal(t, fmt.Sprintf("m%02d", i), m.Body)
		assert.Greater(t, m.ID, last)
		last = m.ID
	}
}

func TestConcurrentRoomSendsMatchStoreOrder(t *testing.T) {
	h := newHarness(t)
	watcher := h.connect("c-watch")
	h.broker.rooms.Join("Lobby", watcher.ID())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		c := h.connect(fmt.Sprintf("c-%d", i))
		wg.Add(1)
		go func(c Conn, n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = h.send(c, EventSendMessage, obj{"username": fmt.Sprintf("u%d", n), "room": "Lobby", "message": "x"})
			}
		}(c, i)
	}
	wg.Wait()

	got := watcher.of(EventNewMessageRoom)
	require.Len(t, got, 40)
	var last int64
	for _, ev := range got {
		id := ev.Data.(MessageView).ID
		assert.Greater(t, id, last)
		last = id
	}
	assert.Zero(t, h.broker.locks.size())
}

func TestDMToOfflineUserIsKept(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	h.must(alice, EventPresence, obj{"username": "alice"})

	h.must(alice, EventSendDM, obj{"username": "alice", "to": "bob", "message": "are you there?"})

	echo := alice.of(EventNewMessageDM)
	require.Len(t, echo, 1)
	assert.Equal(t, "bob", echo[0].Data.(MessageView).Receiver)

	dms, err := h.store.ListDM(h.ctx, "alice", "bob", 0)
	require.NoError(t, err)
	require.Len(t, dms, 1)

	bob := h.connect("c-bob")
	h.must(bob, EventLoadDM, obj{"username": "bob", "other": "alice"})
	hist := bob.of(EventLoadDMHistory)
	require.Len(t, hist, 1)
	msgs := hist[0].Data.([]store.Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, "are you there?", msgs[0].Body)

	lobby, err := h.store.ListRoom(h.ctx, "Lobby", 0)
	require.NoError(t, err)
	assert.Empty(t, lobby)
}

func TestDMToOnlineUser(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	carol := h.connect("c-carol")
	h.must(bob, EventPresence, obj{"username": "bob"})
	h.must(carol, EventPresence, obj{"username": "carol"})

	h.must(alice, EventSendDM, obj{"username": "alice", "to": "bob", "message": "psst"})

	assert.Len(t, alice.of(EventNewMessageDM), 1)
	assert.Len(t, bob.of(EventNewMessageDM), 1)
	assert.Empty(t, carol.of(EventNewMessageDM))
}

func TestDMToSelfIsDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	h.must(alice, EventPresence, obj{"username": "alice"})

	h.must(alice, EventSendDM, obj{"username": "alice", "to": "alice", "message": "note"})
	assert.Len(t, alice.of(EventNewMessageDM), 1)
}

func TestEditAndDeleteAreOwnerOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	mallory := h.connect("c-mallory")
	h.must(alice, EventJoinRoom, obj{"username": "alice"})
	h.must(mallory, EventJoinRoom, obj{"username": "mallory"})
	h.must(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": "original"})
	id := alice.of(EventNewMessageRoom)[2].Data.(MessageView).ID
	alice.reset()
	mallory.reset()

	h.must(mallory, EventEditMessage, obj{"id": id, "message": "defaced"})
	h.must(mallory, EventDeleteMessage, obj{"id": id})
	assert.Empty(t, alice.events)
	assert.Empty(t, mallory.events)

	assert.Equal(t, "original", h.body(id))

	h.must(alice, EventEditMessage, obj{"id": id, "message": "edited"})
	for _, c := range []*fakeConn{alice, mallory} {
		up := c.of(EventUpdateMessage)
		require.Len(t, up, 1)
		assert.Equal(t, "edited", up[0].Data.(store.Message).Body)
	}

	h.must(alice, EventDeleteMessage, obj{"id": id})
	for _, c := range []*fakeConn{alice, mallory} {
		del := c.of(EventDeleteMessage)
		require.Len(t, del, 1)
		assert.Equal(t, DeletedMessage{ID: id}, del[0].Data)
	}
}

func TestEditWithoutIdentityIsIgnored(t *testing.T) {
	h := newHarness(t)
	msg, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", "x", "", nil)
	require.NoError(t, err)
	anon := h.connect("c-anon")

	h.must(anon, EventEditMessage, obj{"id": msg.ID, "message": "y"})
	assert.Empty(t, anon.events)
}

func TestSupersededConnectionKeepsItsIdentity(t *testing.T) {
	h := newHarness(t)
	old := h.connect("c-old")
	h.must(old, EventPresence, obj{"username": "alice"})
	msg, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", "x", "", nil)
	require.NoError(t, err)

	fresh := h.connect("c-new")
	h.must(fresh, EventPresence, obj{"username": "alice"})

	h.must(old, EventEditMessage, obj{"id": msg.ID, "message": "from old tab"})
	assert.Len(t, fresh.of(EventUpdateMessage), 1)
}

func TestReactToggle(t *testing.T) {
	h := newHarness(t)
	msg, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", "x", "", nil)
	require.NoError(t, err)
	bob := h.connect("c-bob")
	other := h.connect("c-other")

	h.must(bob, EventReact, obj{"message_id": msg.ID, "username": "bob", "emoji": "👍"})
	h.must(bob, EventReact, obj{"message_id": msg.ID, "username": "bob", "emoji": "👍"})

	updates := other.of(EventReactionsUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, ReactionsUpdate{MessageID: msg.ID, Reactions: map[string]int{"👍": 1}}, updates[0].Data)
	assert.Equal(t, ReactionsUpdate{MessageID: msg.ID, Reactions: map[string]int{}}, updates[1].Data)
}

func TestReactOnMissingMessageBroadcastsZeroCounts(t *testing.T) {
	h := newHarness(t)
	bob := h.connect("c-bob")

	h.must(bob, EventReact, obj{"message_id": 404, "username": "bob", "emoji": "🔥"})

	updates := bob.of(EventReactionsUpdate)
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].Data.(ReactionsUpdate).Reactions)
}

func TestRequestReactionsRepliesToSenderOnly(t *testing.T) {
	h := newHarness(t)
	msg, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", "x", "", nil)
	require.NoError(t, err)
	_, err = h.store.ToggleReaction(h.ctx, msg.ID, "carol", "🎉")
	require.NoError(t, err)
	bob := h.connect("c-bob")
	other := h.connect("c-other")

	h.must(bob, EventRequestReactions, obj{"message_id": msg.ID})

	require.Len(t, bob.of(EventReactionsUpdate), 1)
	assert.Equal(t, map[string]int{"🎉": 1}, bob.of(EventReactionsUpdate)[0].Data.(ReactionsUpdate).Reactions)
	assert.Empty(t, other.of(EventReactionsUpdate))
}

func TestPinThenDelete(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	h.must(alice, EventPresence, obj{"username": "alice"})
	msg, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", "pin me", "", nil)
	require.NoError(t, err)

	h.must(alice, EventPinMessage, obj{"id": msg.ID})
	require.Len(t, alice.of(EventPinnedMessage), 1)
	lists := alice.of(EventPinnedList)
	require.Len(t, lists, 1)
	assert.Len(t, lists[0].Data.([]store.Message), 1)

	h.must(alice, EventDeleteMessage, obj{"id": msg.ID})
	alice.reset()

	h.must(alice, EventGetPinned, obj{"room": "Lobby"})
	lists = alice.of(EventPinnedList)
	require.Len(t, lists, 1)
	assert.Empty(t, lists[0].Data.([]store.Message))
	assert.Empty(t, alice.of(EventError))
}

func TestPinMissingMessageIsSilent(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")

	h.must(alice, EventPinMessage, obj{"id": 12345})
	assert.Empty(t, alice.events)
}

func TestTypingGoesToRoomMembers(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	carol := h.connect("c-carol")
	h.broker.rooms.Join("Go", alice.ID())
	h.broker.rooms.Join("Go", bob.ID())

	h.must(alice, EventTyping, obj{"username": "alice", "room": "Go"})
	h.must(alice, EventStopTyping, obj{"username": "alice", "room": "Go"})

	assert.Equal(t, []Event{
		{Type: EventTyping, Data: Typing{Username: "alice"}},
		{Type: EventStopTyping, Data: Typing{Username: "alice"}},
	}, bob.events)
	assert.Empty(t, carol.events)
}

func TestSearchAndLoad(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{"Hello world", "nothing", "HELLO again"} {
		_, err := h.store.Append(h.ctx, store.InRoom("Lobby"), "alice", body, "", nil)
		require.NoError(t, err)
	}
	c := h.connect("c-1")

	h.must(c, EventSearch, obj{"room": "Lobby", "query": "hello"})
	res := c.of(EventSearchResults)[0].Data.(SearchResults).Results
	require.Len(t, res, 2)
	assert.Equal(t, "HELLO again", res[0].Body)

	h.must(c, EventLoadRoomMessages, obj{})
	msgs := c.of(EventLoadRoomMessages)[0].Data.([]store.Message)
	assert.Len(t, msgs, 3)
}

func TestFetchInitial(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.CreateUser(h.ctx, "alice", "pw", "")
	require.NoError(t, err)
	c := h.connect("c-1")
	h.broker.rooms.Join("Go", "c-1")

	h.must(c, EventFetchInitial, nil)

	initial := c.of(EventInitial)[0].Data.(Initial)
	assert.Equal(t, []store.Profile{{Username: "alice"}}, initial.Users)
	assert.Equal(t, []string{"Lobby", "Go"}, initial.Rooms)
}

func TestDisconnectBroadcastsOnce(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	bob := h.connect("c-bob")
	h.must(alice, EventJoinRoom, obj{"username": "alice"})
	bob.reset()

	h.broker.Disconnect(h.ctx, alice)
	h.broker.Disconnect(h.ctx, alice)

	lists := bob.of(EventUserList)
	require.Len(t, lists, 1)
	assert.Empty(t, lists[0].Data.([]presence.Entry))
	assert.Empty(t, h.broker.rooms.Members("Lobby"))
	assert.Equal(t, 1, h.broker.Connections())

	err := h.send(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": "ghost"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStaleDisconnectKeepsNewerPresence(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")
	c2 := h.connect("c2")
	h.must(c1, EventPresence, obj{"username": "alice"})
	h.must(c2, EventPresence, obj{"username": "alice"})

	h.broker.Disconnect(h.ctx, c1)

	id, ok := h.broker.presence.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", id)
	lists := c2.of(EventUserList)
	assert.Equal(t, []presence.Entry{{Username: "alice"}}, lists[len(lists)-1].Data)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	h := newHarness(t)
	c := h.connect("c-1")

	err := h.broker.Handle(h.ctx, c, Frame{Type: EventSendMessage, Data: json.RawMessage(`{"room":`)})
	assert.ErrorIs(t, err, ErrMalformed)

	err = h.send(c, EventSendMessage, obj{"room": "Lobby", "message": "no user"})
	assert.ErrorIs(t, err, ErrMalformed)

	err = h.send(c, EventSendDM, obj{"username": "alice", "message": "no target"})
	assert.ErrorIs(t, err, ErrMalformed)

	err = h.send(c, "voice:join", obj{})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	assert.Empty(t, c.events)

	h.must(c, EventJoinRoom, obj{"username": "alice"})
	assert.NotEmpty(t, c.events)
}

func TestTransportIdentityWins(t *testing.T) {
	h := newHarness(t)
	c := newConn("c-1")
	c.user = "alice"
	h.broker.Connect(c)

	h.must(c, EventJoinRoom, obj{"username": "mallory"})
	h.must(c, EventSendMessage, obj{"username": "mallory", "room": "Lobby", "message": "hi"})

	msgs, err := h.store.ListRoom(h.ctx, "Lobby", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice joined Lobby", msgs[0].Body)
	assert.Equal(t, "alice", msgs[1].Sender)
	_, ok := h.broker.presence.Lookup("mallory")
	assert.False(t, ok)
}

type brokenStore struct {
	*store.Store
}

func (brokenStore) ListRoom(context.Context, string, int) ([]store.Message, error) {
	return nil, errors.New("disk I/O error")
}

func TestStoreFailureOnlyReachesOrigin(t *testing.T) {
	h := newHarness(t)
	b := New(brokenStore{h.store}, h.store, presence.New(h.store), rooms.New(h.store), Options{})
	alice := newConn("c-alice")
	bob := newConn("c-bob")
	b.Connect(alice)
	b.Connect(bob)

	require.NoError(t, b.Handle(h.ctx, alice, Frame{Type: EventLoadRoomMessages}))

	errs := alice.of(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "internal", errs[0].Data.(ErrorPayload).Code)
	assert.Empty(t, bob.events)

	require.NoError(t, b.Handle(h.ctx, alice, Frame{Type: EventGetPinned}))
	assert.Len(t, alice.of(EventPinnedList), 1)
}

func TestFullConnectionDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t)
	slow := h.connect("c-slow")
	slow.full = true
	fast := h.connect("c-fast")
	h.broker.rooms.Join("Lobby", slow.ID())
	h.broker.rooms.Join("Lobby", fast.ID())

	h.must(fast, EventSendMessage, obj{"username": "fast", "room": "Lobby", "message": "hi"})
	assert.Len(t, fast.of(EventNewMessageRoom), 1)
}

func TestEditWithoutMessageFieldIsDropped(t *testing.T) {
	h := newHarness(t)
	alice := h.connect("c-alice")
	other := h.connect("c-other")
	h.must(alice, EventJoinRoom, obj{"username": "alice"})
	h.must(alice, EventSendMessage, obj{"username": "alice", "room": "Lobby", "message": "keep me"})
	msgs := alice.of(EventNewMessageRoom)
	id := msgs[len(msgs)-1].Data.(MessageView).ID
	alice.reset()
	other.reset()

	err := h.send(alice, EventEditMessage, obj{"id": id})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "keep me", h.body(id))
	assert.Empty(t, alice.events)
	assert.Empty(t, other.events)

	// An explicit empty body is a real edit.
	h.must(alice, EventEditMessage, obj{"id": id, "message": ""})
	assert.Equal(t, "", h.body(id))
	assert.Len(t, other.of(EventUpdateMessage), 1)
}

func TestJoinFailureLeavesNoMembership(t *testing.T) {
	h := newHarness(t)
	b := New(brokenStore{h.store}, h.store, presence.New(h.store), rooms.New(h.store), Options{})
	alice := newConn("c-alice")
	watcher := newConn("c-watch")
	b.Connect(alice)
	b.Connect(watcher)

	require.NoError(t, b.Handle(h.ctx, alice, Frame{Type: EventJoinRoom, Data: json.RawMessage(`{"username":"alice"}`)}))

	assert.Equal(t, []string{EventError}, alice.types())
	assert.Empty(t, watcher.events)
	_, online := b.presence.Lookup("alice")
	assert.False(t, online)
	assert.Empty(t, b.rooms.Members("Lobby"))

	msgs, err := h.store.ListRoom(h.ctx, "Lobby", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

type failingAvatars struct{}

func (failingAvatars) Avatar(context.Context, string) (string, error) {
	return "", errors.New("database is locked")
}

func TestUserListSentWhenAvatarsFail(t *testing.T) {
	h := newHarness(t)
	b := New(h.store, h.store, presence.New(failingAvatars{}), rooms.New(h.store), Options{})
	alice := newConn("c-alice")
	bob := newConn("c-bob")
	b.Connect(alice)
	b.Connect(bob)
	require.NoError(t, b.Handle(h.ctx, alice, Frame{Type: EventPresence, Data: json.RawMessage(`{"username":"alice"}`)}))
	require.NoError(t, b.Handle(h.ctx, bob, Frame{Type: EventPresence, Data: json.RawMessage(`{"username":"bob"}`)}))
	bob.reset()

	b.Disconnect(h.ctx, alice)

	lists := bob.of(EventUserList)
	require.Len(t, lists, 1)
	assert.Equal(t, []presence.Entry{{Username: "bob"}}, lists[0].Data)
}
