package model

import "strings"

// BotCommand is one entry of the bot's chat-menu command list, synced to the
// platform via PATCH /me.
type BotCommand struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// NormalizeCommands lower-cases names, strips slashes, drops empty entries
// and defaults the description to the name.
func NormalizeCommands(in []BotCommand) []BotCommand {
	out := make([]BotCommand, 0, len(in))
	for _, c := range in {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Name)), "/", "")
		if name == "" {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = name
		}
		out = append(out, BotCommand{Name: name, Description: desc})
	}
	return out
}
