package model

// ReceiveMode selects how one bot entry ingests updates. Polling and webhook
// are mutually exclusive per entry.
type ReceiveMode string

const (
	ReceiveDisabled    ReceiveMode = "disabled"
	ReceiveLongPolling ReceiveMode = "long_polling"
	ReceiveWebhook     ReceiveMode = "webhook"
)

func (m ReceiveMode) Valid() bool {
	switch m {
	case ReceiveDisabled, ReceiveLongPolling, ReceiveWebhook:
		return true
	}
	return false
}

// ChatTarget is one registered recipient of a bot entry. Exactly one of
// ChatID/UserID is set. The sign of ChatID is the sole chat-kind
// discriminator: negative ids are group chats, positive ids dialogs.
type ChatTarget struct {
	Entity string // optional alias, e.g. "notify.max_home"
	Name   string
	ChatID int64
	UserID int64
}

func (t ChatTarget) IsGroup() bool { return t.ChatID < 0 }

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 && t.UserID == 0 }

// BotEntry is one configured bot binding: a token plus its registered chat
// targets, default keyboard and ingestion mode. Entries come from config and
// are replaced wholesale on reconfiguration, never mutated in place.
type BotEntry struct {
	ID            string
	Name          string
	AccessToken   string
	MessageFormat string // "" (plain) | "markdown" | "html"
	ReceiveMode   ReceiveMode
	WebhookSecret string
	Targets       []ChatTarget
	Keyboard      Keyboard
	Commands      []BotCommand
}

func (e *BotEntry) TargetByChatID(chatID int64) (ChatTarget, bool) {
	for _, t := range e.Targets {
		if t.ChatID != 0 && t.ChatID == chatID {
			return t, true
		}
	}
	return ChatTarget{}, false
}

func (e *BotEntry) TargetByUserID(userID int64) (ChatTarget, bool) {
	for _, t := range e.Targets {
		if t.UserID != 0 && t.UserID == userID {
			return t, true
		}
	}
	return ChatTarget{}, false
}
