package usecase

import (
	"errors"
	"testing"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

func textUpdate(id int64, text string) *model.InboundUpdate {
	return &model.InboundUpdate{
		UpdateID:   id,
		UpdateType: model.UpdateMessageCreated,
		Timestamp:  1700000000123,
		Message: &model.Message{
			Sender:    &model.User{UserID: 42, Name: "tester"},
			Recipient: &model.Recipient{ChatID: -100, ChatType: "chat"},
			Body:      &model.Body{MID: "mid.1", Seq: 7, Text: text},
		},
	}
}

func TestParseUpdate_PlainText(t *testing.T) {
	ev, err := ParseUpdate("entry-1", textUpdate(10, "  hello there  "))
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if ev.UpdateType != model.UpdateMessageCreated {
		t.Errorf("update_type = %q", ev.UpdateType)
	}
	if ev.ConfigEntryID != "entry-1" {
		t.Errorf("config_entry_id = %q", ev.ConfigEntryID)
	}
	if ev.EventID != "10" {
		t.Errorf("event_id = %q, want update_id", ev.EventID)
	}
	if ev.Text != "hello there" {
		t.Errorf("text = %q, want trimmed", ev.Text)
	}
	if ev.Command != "" || ev.Args != "" {
		t.Errorf("unexpected command %q / args %q", ev.Command, ev.Args)
	}
	if ev.UserID != 42 || ev.ChatID != -100 || ev.MessageID != "mid.1" {
		t.Errorf("ids = user %d chat %d mid %q", ev.UserID, ev.ChatID, ev.MessageID)
	}
}

func TestParseUpdate_CommandExtraction(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
	}{
		{"/start", "start", ""},
		{"/start hello world", "start", "hello world"},
		{"/STATUS  now ", "status", "now"},
		{"/lights\ton", "lights", "on"},
		{"no command here", "", ""},
		{"half /way", "", ""},
	}
	for _, tc := range tests {
		ev, err := ParseUpdate("e", textUpdate(1, tc.text))
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if ev.Command != tc.command || ev.Args != tc.args {
			t.Errorf("%q: command=%q args=%q, want %q / %q", tc.text, ev.Command, ev.Args, tc.command, tc.args)
		}
	}
}

func TestParseUpdate_Callback(t *testing.T) {
	u := &model.InboundUpdate{
		UpdateType: model.UpdateMessageCallback,
		Timestamp:  1700000001000,
		Message: &model.Message{
			Sender:    &model.User{UserID: 1, IsBot: true},
			Recipient: &model.Recipient{ChatID: 555},
			Body:      &model.Body{MID: "mid.9", Text: "Управление:"},
		},
		Callback: &model.Callback{CallbackID: "cb1", UserID: 42, Payload: "/light_on"},
	}
	ev, err := ParseUpdate("entry-1", u)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if ev.CallbackData != "/light_on" {
		t.Errorf("callback_data = %q", ev.CallbackData)
	}
	// The pressing user wins over the message sender (the bot).
	if ev.UserID != 42 {
		t.Errorf("user_id = %d, want callback user", ev.UserID)
	}
	if ev.Text != "Управление:" {
		t.Errorf("text = %q, want original message text", ev.Text)
	}
	if ev.EventID != "message_callback_555_42_/light_on" {
		t.Errorf("event_id = %q", ev.EventID)
	}
}

func TestParseUpdate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		u    *model.InboundUpdate
	}{
		{"unknown type", &model.InboundUpdate{UpdateType: "bot_started"}},
		{"created without message", &model.InboundUpdate{UpdateType: model.UpdateMessageCreated}},
		{"callback without callback", &model.InboundUpdate{UpdateType: model.UpdateMessageCallback, Message: &model.Message{}}},
		{"callback with empty payload", &model.InboundUpdate{
			UpdateType: model.UpdateMessageCallback,
			Message:    &model.Message{},
			Callback:   &model.Callback{UserID: 1, Payload: "   "},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseUpdate("e", tc.u)
			var perr *domain.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want ParseError", err)
			}
		})
	}
}
