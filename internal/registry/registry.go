// Package registry holds the live set of configured bot entries. The set is
// built from config and swapped wholesale on reload; readers always see one
// consistent generation.
package registry

import (
	"sync"

	"github.com/kai-zer-ru/max-notify-ha/internal/config"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

type entityRef struct {
	entry  *model.BotEntry
	target model.ChatTarget
}

type Registry struct {
	mu       sync.RWMutex
	entries  []*model.BotEntry
	byID     map[string]*model.BotEntry
	byEntity map[string]entityRef
}

var _ ports.EntrySource = (*Registry)(nil)

func New(bots []config.BotConfig) *Registry {
	r := &Registry{}
	r.Replace(bots)
	return r
}

// Replace swaps the whole entry set in one step.
func (r *Registry) Replace(bots []config.BotConfig) {
	entries := make([]*model.BotEntry, 0, len(bots))
	byID := make(map[string]*model.BotEntry, len(bots))
	byEntity := make(map[string]entityRef)

	for _, b := range bots {
		entry := buildEntry(b)
		entries = append(entries, entry)
		byID[entry.ID] = entry
		for _, t := range entry.Targets {
			if t.Entity != "" {
				byEntity[t.Entity] = entityRef{entry: entry, target: t}
			}
		}
	}

	r.mu.Lock()
	r.entries = entries
	r.byID = byID
	r.byEntity = byEntity
	r.mu.Unlock()
}

func buildEntry(b config.BotConfig) *model.BotEntry {
	mode := model.ReceiveMode(b.ReceiveMode)
	if !mode.Valid() {
		mode = model.ReceiveDisabled
	}
	format := b.MessageFormat
	if format == "text" {
		format = ""
	}

	targets := make([]model.ChatTarget, 0, len(b.Targets))
	for _, t := range b.Targets {
		targets = append(targets, model.ChatTarget{
			Entity: t.Entity,
			Name:   t.Name,
			ChatID: t.ChatID,
			UserID: t.UserID,
		})
	}

	var kb model.Keyboard
	for _, row := range b.Keyboard {
		r := make([]model.Button, 0, len(row))
		for _, btn := range row {
			r = append(r, model.Button{Type: btn.Type, Text: btn.Text, Payload: btn.Payload})
		}
		kb = append(kb, r)
	}

	commands := make([]model.BotCommand, 0, len(b.Commands))
	for _, c := range b.Commands {
		commands = append(commands, model.BotCommand{Name: c.Name, Description: c.Description})
	}

	return &model.BotEntry{
		ID:            b.ID,
		Name:          b.Name,
		AccessToken:   b.AccessToken,
		MessageFormat: format,
		ReceiveMode:   mode,
		WebhookSecret: b.WebhookSecret,
		Targets:       targets,
		Keyboard:      kb.Normalize(),
		Commands:      model.NormalizeCommands(commands),
	}
}

func (r *Registry) Entry(id string) (*model.BotEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) ByEntity(entity string) (*model.BotEntry, model.ChatTarget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byEntity[entity]
	if !ok {
		return nil, model.ChatTarget{}, false
	}
	return ref.entry, ref.target, true
}

// Single returns the sole entry when exactly one is configured.
func (r *Registry) Single() (*model.BotEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 1 {
		return r.entries[0], true
	}
	return nil, false
}

func (r *Registry) List() []*model.BotEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.BotEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
