package maxapi

import (
	"encoding/json"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

type updatesResponse struct {
	Updates []model.InboundUpdate `json:"updates"`
	Marker  int64                 `json:"marker"`
}

type chatInfo struct {
	ChatID         int64       `json:"chat_id"`
	DialogWithUser *model.User `json:"dialog_with_user"`
}

type chatsResponse struct {
	Chats  []chatInfo `json:"chats"`
	Marker *int64     `json:"marker"`
}

type uploadSlot struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type subscriptionRequest struct {
	URL         string   `json:"url"`
	UpdateTypes []string `json:"update_types"`
	Secret      string   `json:"secret,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type commandsRequest struct {
	Commands []model.BotCommand `json:"commands"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type keyboardPayload struct {
	Buttons model.Keyboard `json:"buttons"`
}

type messageBody struct {
	Text        string       `json:"text"`
	Format      string       `json:"format,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// ExtractAttachmentPayload digs the token-bearing object out of an upload
// response. The CDN answers in several shapes: a bare {token}, or the token
// nested under photos/{key}, files/{key} or file.
func ExtractAttachmentPayload(raw json.RawMessage) (json.RawMessage, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, false
	}
	if hasToken(top) {
		return raw, true
	}
	for _, key := range []string{"photos", "files"} {
		nested, ok := top[key]
		if !ok {
			continue
		}
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(nested, &byName); err != nil {
			continue
		}
		for _, v := range byName {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(v, &obj); err != nil {
				continue
			}
			if hasToken(obj) {
				return v, true
			}
		}
	}
	if file, ok := top["file"]; ok {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(file, &obj); err == nil && hasToken(obj) {
			return file, true
		}
	}
	return nil, false
}

func hasToken(obj map[string]json.RawMessage) bool {
	tok, ok := obj["token"]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(tok, &s); err != nil {
		return false
	}
	return s != ""
}
