package usecase

import (
	"fmt"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

// TargetRef is a logical send target: either a notify entity alias, or an
// explicit entry + chat/user id pair.
type TargetRef struct {
	Entity        string
	ConfigEntryID string
	ChatID        int64
	UserID        int64
}

// Recipient is a resolved target: the owning entry (carrying the bot token
// and default keyboard) plus the concrete chat target.
type Recipient struct {
	Entry  *model.BotEntry
	Target model.ChatTarget
}

// Resolver maps logical targets onto configured entries. Stateless; all
// lookups go through the entry source.
type Resolver struct {
	entries ports.EntrySource
}

func NewResolver(entries ports.EntrySource) *Resolver {
	return &Resolver{entries: entries}
}

// Resolve validates and resolves ref. Supplying both chat_id and user_id is
// ambiguous and rejected rather than guessed at.
func (r *Resolver) Resolve(ref TargetRef) (Recipient, error) {
	if ref.Entity != "" {
		entry, target, ok := r.entries.ByEntity(ref.Entity)
		if !ok {
			return Recipient{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, ref.Entity)
		}
		return Recipient{Entry: entry, Target: target}, nil
	}

	if ref.ChatID != 0 && ref.UserID != 0 {
		return Recipient{}, domain.ErrAmbiguousRecipient
	}
	if ref.ChatID == 0 && ref.UserID == 0 {
		return Recipient{}, domain.ErrNoRecipient
	}

	var entry *model.BotEntry
	if ref.ConfigEntryID != "" {
		e, ok := r.entries.Entry(ref.ConfigEntryID)
		if !ok {
			return Recipient{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, ref.ConfigEntryID)
		}
		entry = e
	} else {
		e, ok := r.entries.Single()
		if !ok {
			return Recipient{}, fmt.Errorf("%w: config_entry_id required with multiple entries", domain.ErrEntryNotFound)
		}
		entry = e
	}

	// Registered targets contribute their display name; unregistered ids are
	// still valid send targets.
	if ref.ChatID != 0 {
		if t, ok := entry.TargetByChatID(ref.ChatID); ok {
			return Recipient{Entry: entry, Target: t}, nil
		}
		return Recipient{Entry: entry, Target: model.ChatTarget{ChatID: ref.ChatID}}, nil
	}
	if t, ok := entry.TargetByUserID(ref.UserID); ok {
		return Recipient{Entry: entry, Target: t}, nil
	}
	return Recipient{Entry: entry, Target: model.ChatTarget{UserID: ref.UserID}}, nil
}
