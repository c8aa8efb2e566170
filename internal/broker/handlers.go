package broker

import (
	"context"
	"fmt"

	"chathub/internal/logger"
	"chathub/internal/store"
)

func (b *Broker) joinRoom(ctx context.Context, c Conn, in inbound) error {
	user := identity(c, in.Username)
	if user == "" {
		return missing(EventJoinRoom, "username")
	}
	room := b.room(in.Room)

	unlock := b.locks.Lock(roomKey(room))
	history, err := b.store.ListRoom(ctx, room, b.historyLimit)
	if err != nil {
		unlock()
		return b.fail(c, "list_room", err)
	}
	b.bindUser(c, user)
	b.rooms.Join(room, c.ID())
	b.deliver(c, Event{Type: EventLoadRoomMessages, Data: orEmpty(history)})

	joined, err := b.store.Append(ctx, store.InRoom(room), store.SystemSender, fmt.Sprintf("%s joined %s", user, room), "", nil)
	if err != nil {
		unlock()
		return b.fail(c, "append", err)
	}
	b.toRoom(room, Event{Type: EventNewMessageRoom, Data: MessageView{Message: joined}})
	unlock()

	logger.Info("joined room", "conn", c.ID(), "user", user, "room", room)
	b.broadcastUserList(ctx, c)
	return b.broadcastRooms(ctx, c)
}

func (b *Broker) sendMessage(ctx context.Context, c Conn, in inbound) error {
	user := identity(c, in.Username)
	if user == "" {
		return missing(EventSendMessage, "username")
	}
	if in.Room == "" {
		return missing(EventSendMessage, "room")
	}

	avatar, err := b.dir.Avatar(ctx, user)
	if err != nil {
		return b.fail(c, "avatar", err)
	}

	unlock := b.locks.Lock(roomKey(in.Room))
	defer unlock()

	msg, err := b.store.Append(ctx, store.InRoom(in.Room), user, in.text(), in.Image, in.ReplyTo)
	if err != nil {
		return b.fail(c, "append", err)
	}
	b.toRoom(in.Room, Event{Type: EventNewMessageRoom, Data: MessageView{Message: msg, Avatar: avatar}})
	return nil
}

func (b *Broker) sendDM(ctx context.Context, c Conn, in inbound) error {
	sender := identity(c, in.Username)
	if sender == "" {
		return missing(EventSendDM, "username")
	}
	if in.To == "" {
		return missing(EventSendDM, "to")
	}

	known, err := b.dir.Exists(ctx, in.To)
	if err != nil {
		return b.fail(c, "exists", err)
	}
	if !known {
		logger.Debug("dm to unregistered user", "conn", c.ID(), "user", sender, "to", in.To)
	}

	avatar, err := b.dir.Avatar(ctx, sender)
	if err != nil {
		return b.fail(c, "avatar", err)
	}

	unlock := b.locks.Lock(dmKey(sender, in.To))
	defer unlock()

	msg, err := b.store.Append(ctx, store.Direct(in.To), sender, in.text(), in.Image, in.ReplyTo)
	if err != nil {
		return b.fail(c, "append", err)
	}

	ev := Event{Type: EventNewMessageDM, Data: MessageView{Message: msg, Avatar: avatar}}
	if id, online := b.presence.Lookup(in.To); online && id != c.ID() {
		b.deliverTo(id, ev)
	}
	b.deliver(c, ev)
	return nil
}

func (b *Broker) editMessage(ctx context.Context, c Conn, in inbound) error {
	if in.ID == nil {
		return missing(EventEditMessage, "id")
	}
	if in.Message == nil {
		return missing(EventEditMessage, "message")
	}
	id := *in.ID
	user := b.requester(c)

	unlock := b.locks.Lock(messageKey(id))
	defer unlock()

	msg, res, err := b.store.Edit(ctx, id, user, *in.Message)
	if err != nil {
		return b.fail(c, "edit", err)
	}
	if res != store.Applied {
		logger.Debug("edit ignored", "conn", c.ID(), "user", user, "id", id, "result", res)
		return nil
	}
	b.broadcast(Event{Type: EventUpdateMessage, Data: msg})
	return nil
}

func (b *Broker) deleteMessage(ctx context.Context, c Conn, in inbound) error {
	if in.ID == nil {
		return missing(EventDeleteMessage, "id")
	}
	id := *in.ID
	user := b.requester(c)

	unlock := b.locks.Lock(messageKey(id))
	defer unlock()

	res, err := b.store.Delete(ctx, id, user)
	if err != nil {
		return b.fail(c, "delete", err)
	}
	if res != store.Applied {
		logger.Debug("delete ignored", "conn", c.ID(), "user", user, "id", id, "result", res)
		return nil
	}
	b.broadcast(Event{Type: EventDeleteMessage, Data: DeletedMessage{ID: id}})
	return nil
}

func (b *Broker) react(ctx context.Context, c Conn, in inbound) error {
	if in.MessageID == nil {
		return missing(EventReact, "message_id")
	}
	user := identity(c, in.Username)
	if user == "" {
		return missing(EventReact, "username")
	}
	if in.Emoji == "" {
		return missing(EventReact, "emoji")
	}
	id := *in.MessageID

	unlock := b.locks.Lock(messageKey(id))
	defer unlock()

	if _, err := b.store.ToggleReaction(ctx, id, user, in.Emoji); err != nil {
		return b.fail(c, "toggle_reaction", err)
	}
	counts, err := b.store.ReactionCounts(ctx, id)
	if err != nil {
		return b.fail(c, "reaction_counts", err)
	}
	b.broadcast(Event{Type: EventReactionsUpdate, Data: reactions(id, counts)})
	return nil
}

func (b *Broker) requestReactions(ctx context.Context, c Conn, in inbound) error {
	if in.MessageID == nil {
		return missing(EventRequestReactions, "message_id")
	}
	counts, err := b.store.ReactionCounts(ctx, *in.MessageID)
	if err != nil {
		return b.fail(c, "reaction_counts", err)
	}
	b.deliver(c, Event{Type: EventReactionsUpdate, Data: reactions(*in.MessageID, counts)})
	return nil
}

func reactions(id int64, counts map[string]int) ReactionsUpdate {
	if counts == nil {
		counts = map[string]int{}
	}
	return ReactionsUpdate{MessageID: id, Reactions: counts}
}

func (b *Broker) pinMessage(ctx context.Context, c Conn, in inbound) error {
	if in.ID == nil {
		return missing(EventPinMessage, "id")
	}
	room := b.room(in.Room)

	unlock := b.locks.Lock(pinsKey(room))
	defer unlock()

	msg, ok, err := b.store.Pin(ctx, *in.ID, room)
	if err != nil {
		return b.fail(c, "pin", err)
	}
	if !ok {
		logger.Debug("pin of missing message", "conn", c.ID(), "id", *in.ID, "room", room)
		return nil
	}
	b.broadcast(Event{Type: EventPinnedMessage, Data: msg})

	pinned, err := b.store.Pinned(ctx, room, 0)
	if err != nil {
		return b.fail(c, "pinned", err)
	}
	b.broadcast(Event{Type: EventPinnedList, Data: orEmpty(pinned)})
	return nil
}

func (b *Broker) typing(c Conn, kind string, in inbound) error {
	user := identity(c, in.Username)
	if user == "" {
		return missing(kind, "username")
	}
	if in.Room == "" {
		return missing(kind, "room")
	}
	b.toRoom(in.Room, Event{Type: kind, Data: Typing{Username: user}})
	return nil
}

func (b *Broker) loadRoomMessages(ctx context.Context, c Conn, in inbound) error {
	msgs, err := b.store.ListRoom(ctx, b.room(in.Room), b.historyLimit)
	if err != nil {
		return b.fail(c, "list_room", err)
	}
	b.deliver(c, Event{Type: EventLoadRoomMessages, Data: orEmpty(msgs)})
	return nil
}

func (b *Broker) loadDM(ctx context.Context, c Conn, in inbound) error {
	user := identity(c, in.Username)
	if user == "" {
		return missing(EventLoadDM, "username")
	}
	if in.Other == "" {
		return missing(EventLoadDM, "other")
	}
	msgs, err := b.store.ListDM(ctx, user, in.Other, b.historyLimit)
	if err != nil {
		return b.fail(c, "list_dm", err)
	}
	b.deliver(c, Event{Type: EventLoadDMHistory, Data: orEmpty(msgs)})
	return nil
}

func (b *Broker) search(ctx context.Context, c Conn, in inbound) error {
	if in.Room == "" {
		return missing(EventSearch, "room")
	}
	if in.Query == "" {
		return missing(EventSearch, "query")
	}
	msgs, err := b.store.Search(ctx, in.Room, in.Query, 0)
	if err != nil {
		return b.fail(c, "search", err)
	}
	b.deliver(c, Event{Type: EventSearchResults, Data: SearchResults{Results: orEmpty(msgs)}})
	return nil
}

func (b *Broker) getPinned(ctx context.Context, c Conn, in inbound) error {
	pinned, err := b.store.Pinned(ctx, b.room(in.Room), 0)
	if err != nil {
		return b.fail(c, "pinned", err)
	}
	b.deliver(c, Event{Type: EventPinnedList, Data: orEmpty(pinned)})
	return nil
}

func (b *Broker) fetchInitial(ctx context.Context, c Conn) error {
	users, err := b.dir.ListUsers(ctx)
	if err != nil {
		return b.fail(c, "list_users", err)
	}
	if users == nil {
		users = []store.Profile{}
	}
	known, err := b.rooms.KnownRooms(ctx)
	if err != nil {
		return b.fail(c, "rooms", err)
	}
	b.deliver(c, Event{Type: EventInitial, Data: Initial{Users: users, Rooms: known}})
	return nil
}

// identify binds a username without joining a room.
func (b *Broker) identify(ctx context.Context, c Conn, in inbound) error {
	user := identity(c, in.Username)
	if user == "" {
		return missing(EventPresence, "username")
	}
	b.bindUser(c, user)
	b.broadcastUserList(ctx, c)
	return nil
}
