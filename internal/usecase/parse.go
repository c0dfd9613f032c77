package usecase

import (
	"strings"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

// ParseUpdate normalizes one raw platform update into the event payload.
// Pure: no side effects, no clock, no network.
//
// Command extraction: text starting with "/" yields the lower-cased first
// whitespace-delimited token (slash stripped) as command and the trimmed
// remainder as args. For callback presses the text is the original message's
// text (the one the keyboard was attached to) and the same extraction
// applies to it.
func ParseUpdate(entryID string, u *model.InboundUpdate) (*model.NormalizedEvent, error) {
	switch u.UpdateType {
	case model.UpdateMessageCreated:
		if u.Message == nil {
			return nil, &domain.ParseError{Reason: "message_created without message"}
		}
	case model.UpdateMessageCallback:
		if u.Callback == nil {
			return nil, &domain.ParseError{Reason: "message_callback without callback"}
		}
		if strings.TrimSpace(u.Callback.Payload) == "" {
			return nil, &domain.ParseError{Reason: "message_callback without payload"}
		}
	default:
		return nil, &domain.ParseError{Reason: "unknown update_type " + u.UpdateType}
	}

	ev := &model.NormalizedEvent{
		UpdateType:    u.UpdateType,
		ConfigEntryID: entryID,
		EventID:       u.DedupKey(),
		Timestamp:     u.Timestamp,
	}

	if u.Message != nil {
		if r := u.Message.Recipient; r != nil {
			ev.ChatID = r.ChatID
			if ev.ChatID == 0 {
				ev.ChatID = r.UserID
			}
		}
		if b := u.Message.Body; b != nil {
			ev.MessageID = b.MID
			ev.Text = strings.TrimSpace(b.Text)
		}
	}

	// Who wrote, or who pressed. On callbacks Message.Sender is usually the
	// bot itself, so the callback's user wins.
	if u.UpdateType == model.UpdateMessageCallback {
		ev.CallbackData = strings.TrimSpace(u.Callback.Payload)
		ev.UserID = u.Callback.UserID
	}
	if ev.UserID == 0 && u.Message != nil && u.Message.Sender != nil {
		ev.UserID = u.Message.Sender.UserID
	}

	ev.Command, ev.Args = splitCommand(ev.Text)
	return ev, nil
}

func splitCommand(text string) (command, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	rest := text[1:]
	if i := strings.IndexFunc(rest, isSpace); i >= 0 {
		return strings.ToLower(rest[:i]), strings.TrimSpace(rest[i:])
	}
	return strings.ToLower(rest), ""
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
