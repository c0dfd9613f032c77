package model

import (
	"fmt"
)

// Update types this service subscribes to. The MAX API knows more, but only
// these two reach the event stream.
const (
	UpdateMessageCreated  = "message_created"
	UpdateMessageCallback = "message_callback"
)

// InboundUpdate is the raw update as delivered by the MAX platform, identical
// for the long-polling and webhook transports. For message_callback updates
// Message is the message the pressed keyboard was attached to.
type InboundUpdate struct {
	UpdateID   int64     `json:"update_id,omitempty"`
	UpdateType string    `json:"update_type"`
	Timestamp  int64     `json:"timestamp,omitempty"`
	Message    *Message  `json:"message,omitempty"`
	Callback   *Callback `json:"callback,omitempty"`
}

type Message struct {
	Sender    *User      `json:"sender,omitempty"`
	Recipient *Recipient `json:"recipient,omitempty"`
	Body      *Body      `json:"body,omitempty"`
}

type User struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
	IsBot  bool   `json:"is_bot,omitempty"`
}

// Recipient carries the chat the message landed in. Dialogs may come with
// user_id instead of chat_id.
type Recipient struct {
	ChatID   int64  `json:"chat_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	ChatType string `json:"chat_type,omitempty"`
}

type Body struct {
	MID  string `json:"mid,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
	Text string `json:"text,omitempty"`
}

// Callback is the button-press part of a message_callback update. UserID is
// the pressing user (Message.Sender may be the bot itself there).
type Callback struct {
	CallbackID string `json:"callback_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// DedupKey derives the deduplication identity of this update. The platform's
// update_id wins when present. Callback presses fall back to
// (chat, user, payload) only, so every redelivery of one press maps to one
// key; plain messages fall back to (timestamp, mid).
func (u *InboundUpdate) DedupKey() string {
	if u.UpdateID != 0 {
		return fmt.Sprintf("%d", u.UpdateID)
	}
	var chatID int64
	var mid string
	if u.Message != nil {
		if u.Message.Recipient != nil {
			chatID = u.Message.Recipient.ChatID
			if chatID == 0 {
				chatID = u.Message.Recipient.UserID
			}
		}
		if u.Message.Body != nil {
			mid = u.Message.Body.MID
		}
	}
	if u.UpdateType == UpdateMessageCallback {
		var userID int64
		var payload string
		if u.Callback != nil {
			userID = u.Callback.UserID
			payload = u.Callback.Payload
		}
		return fmt.Sprintf("%s_%d_%d_%s", u.UpdateType, chatID, userID, payload)
	}
	return fmt.Sprintf("%s_%d_%s", u.UpdateType, u.Timestamp, mid)
}

// NormalizedEvent is the single event payload emitted to the host for every
// admitted update. EventID equals the dedup key, so automations can fence
// duplicates arriving outside the dedup window. Optional fields are omitted
// from the JSON when unset.
type NormalizedEvent struct {
	UpdateType    string `json:"update_type"`
	ConfigEntryID string `json:"config_entry_id"`
	EventID       string `json:"event_id"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	ChatID        int64  `json:"chat_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	Text          string `json:"text,omitempty"`
	Command       string `json:"command,omitempty"`
	Args          string `json:"args,omitempty"`
	CallbackData  string `json:"callback_data,omitempty"`
}
