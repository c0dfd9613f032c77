package ports

import "github.com/kai-zer-ru/max-notify-ha/internal/domain/model"

// EntrySource is the read side of the configuration-entry store. Lookups
// must be safe for concurrent use with reconfiguration.
type EntrySource interface {
	// Entry returns the entry with the given id.
	Entry(id string) (*model.BotEntry, bool)
	// ByEntity resolves a notify entity alias to its entry and target.
	ByEntity(entity string) (*model.BotEntry, model.ChatTarget, bool)
	// Single returns the only configured entry, if there is exactly one.
	Single() (*model.BotEntry, bool)
	// List returns all entries.
	List() []*model.BotEntry
}
