package router

import (
	"context"

	"hwbot/internal/conversation"
	kit "hwbot/internal/transport"
)

// PublishCommands pushes the bot command list to adapters that support it.
func PublishCommands(ctx context.Context, a kit.Adapter) error {
	up, ok := a.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cmds := make([]kit.BotCommand, 0, len(conversation.Commands))
	for _, c := range conversation.Commands {
		cmds = append(cmds, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return up.UpdateMenuCommands(ctx, cmds)
}
