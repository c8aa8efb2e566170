package broker

import (
	"encoding/json"

	"chathub/internal/store"
)

// Inbound event types.
const (
	EventJoinRoom         = "join_room"
	EventSendMessage      = "send_message"
	EventSendDM           = "send_dm"
	EventEditMessage      = "edit_message"
	EventDeleteMessage    = "delete_message"
	EventReact            = "react"
	EventRequestReactions = "request_reactions"
	EventPinMessage       = "pin_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventLoadRoomMessages = "load_room_messages"
	EventLoadDM           = "load_dm"
	EventSearch           = "search"
	EventGetPinned        = "get_pinned"
	EventFetchInitial     = "fetch_initial"
	EventPresence         = "presence"
)

// Outbound event types. load_room_messages, delete_message, typing and
// stop_typing reuse the inbound names.
const (
	EventNewMessageRoom  = "new_message_room"
	EventNewMessageDM    = "new_message_dm"
	EventUserList        = "user_list"
	EventRoomsList       = "rooms_list"
	EventUpdateMessage   = "update_message"
	EventReactionsUpdate = "reactions_update"
	EventPinnedMessage   = "pinned_message"
	EventPinnedList      = "pinned_list"
	EventLoadDMHistory   = "load_dm_history"
	EventSearchResults   = "search_results"
	EventInitial         = "initial"
	EventError           = "error"
)

// Frame is an inbound envelope as read off the wire.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound envelope. Data is marshalled by the transport.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// inbound carries the union of all inbound payload fields.
type inbound struct {
	Username  string  `json:"username,omitempty"`
	Room      string  `json:"room,omitempty"`
	Message   *string `json:"message,omitempty"`
	Image     string  `json:"image,omitempty"`
	ReplyTo   *int64  `json:"reply_to,omitempty"`
	To        string  `json:"to,omitempty"`
	Other     string  `json:"other,omitempty"`
	ID        *int64  `json:"id,omitempty"`
	MessageID *int64  `json:"message_id,omitempty"`
	Emoji     string  `json:"emoji,omitempty"`
	Query     string  `json:"query,omitempty"`
}

// text returns the message field, or "" when absent.
func (in inbound) text() string {
	if in.Message == nil {
		return ""
	}
	return *in.Message
}

// MessageView is a message with the sender's avatar attached.
type MessageView struct {
	store.Message
	Avatar string `json:"avatar,omitempty"`
}

// DeletedMessage is the payload of delete_message.
type DeletedMessage struct {
	ID int64 `json:"id"`
}

// ReactionsUpdate is the payload of reactions_update.
type ReactionsUpdate struct {
	MessageID int64          `json:"message_id"`
	Reactions map[string]int `json:"reactions"`
}

// Typing is the payload of typing and stop_typing.
type Typing struct {
	Username string `json:"username"`
}

// SearchResults is the payload of search_results.
type SearchResults struct {
	Results []store.Message `json:"results"`
}

// Initial is the payload of initial.
type Initial struct {
	Users []store.Profile `json:"users"`
	Rooms []string        `json:"rooms"`
}

// ErrorPayload is sent to a connection whose request failed server-side.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
