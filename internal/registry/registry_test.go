package registry

import (
	"testing"

	"github.com/kai-zer-ru/max-notify-ha/internal/config"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

func testBots() []config.BotConfig {
	return []config.BotConfig{
		{
			ID:            "entry-a",
			Name:          "Home bot",
			AccessToken:   "tok-a",
			MessageFormat: "text",
			ReceiveMode:   "long_polling",
			Targets: []config.TargetConfig{
				{Entity: "notify.max_home", Name: "Home", ChatID: -200},
			},
			Keyboard: [][]config.ButtonConfig{
				{{Text: "Status", Payload: "/status"}, {Text: ""}},
			},
			Commands: []config.CommandConfig{{Name: "/Start"}},
		},
		{
			ID:          "entry-b",
			AccessToken: "tok-b",
			Targets: []config.TargetConfig{
				{Entity: "notify.max_alice", UserID: 42},
			},
		},
	}
}

func TestRegistry_Lookups(t *testing.T) {
	r := New(testBots())

	e, ok := r.Entry("entry-a")
	if !ok || e.AccessToken != "tok-a" {
		t.Fatalf("Entry(entry-a) = %+v, %v", e, ok)
	}
	// "text" collapses to plain, invalid button row entries are dropped.
	if e.MessageFormat != "" {
		t.Errorf("message_format = %q", e.MessageFormat)
	}
	if len(e.Keyboard) != 1 || len(e.Keyboard[0]) != 1 {
		t.Errorf("keyboard = %+v", e.Keyboard)
	}
	if e.Keyboard[0][0].Type != model.ButtonCallback {
		t.Errorf("button type = %q, want default callback", e.Keyboard[0][0].Type)
	}
	if len(e.Commands) != 1 || e.Commands[0].Name != "start" {
		t.Errorf("commands = %+v", e.Commands)
	}

	entry, target, ok := r.ByEntity("notify.max_alice")
	if !ok || entry.ID != "entry-b" || target.UserID != 42 {
		t.Errorf("ByEntity = %v, %+v, %v", entry, target, ok)
	}

	if _, ok := r.Single(); ok {
		t.Error("Single() should fail with two entries")
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("List() = %d entries", got)
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := New(testBots())

	r.Replace([]config.BotConfig{{
		ID:          "entry-c",
		AccessToken: "tok-c",
		Targets:     []config.TargetConfig{{Entity: "notify.max_ops", ChatID: -900}},
	}})

	if _, ok := r.Entry("entry-a"); ok {
		t.Error("entry-a survived the swap")
	}
	if _, _, ok := r.ByEntity("notify.max_home"); ok {
		t.Error("old entity survived the swap")
	}
	if e, ok := r.Single(); !ok || e.ID != "entry-c" {
		t.Errorf("Single() = %+v, %v", e, ok)
	}
}

func TestRegistry_InvalidReceiveModeDisabled(t *testing.T) {
	r := New([]config.BotConfig{{ID: "x", AccessToken: "t"}})
	e, _ := r.Entry("x")
	if e.ReceiveMode != model.ReceiveDisabled {
		t.Errorf("receive_mode = %q, want disabled default", e.ReceiveMode)
	}
}
