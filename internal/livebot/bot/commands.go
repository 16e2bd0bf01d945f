package bot

import (
	"context"
	"fmt"
	"strings"
)

// HelpMessage answers /help.
const HelpMessage = `🤖 Warehouse assistant

Commands:
  • /reset - start the conversation over
  • /help - show this message

What I can do:
  • 📦 create sales orders
  • 🔍 search products and customers
  • 📊 show stock, pending transfers and sales reports
  • ✏️ change orders and deliveries
  • 👤 create new customers

Examples:
  • Create an order for Marco Rossi: 10 chairs
  • Show me the outgoing deliveries
  • Change WH/OUT/00015: 5 cabinets instead of 10
  • Search product large cabinet`

// ResetMessage acknowledges /reset.
const ResetMessage = "🔄 Conversation reset. Earlier messages are forgotten; what can I do for you?"

type command int

const (
	cmdHelp command = iota + 1
	cmdReset
)

func (c command) String() string {
	switch c {
	case cmdHelp:
		return "help"
	case cmdReset:
		return "reset"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

var commands = map[string]command{
	"/help":    cmdHelp,
	"/aiuto":   cmdHelp,
	"/?":       cmdHelp,
	"/reset":   cmdReset,
	"/restart": cmdReset,
	"/clear":   cmdReset,
	"/nuovo":   cmdReset,
}

// parseCommand matches the whole message, case-insensitively.
func parseCommand(text string) (command, bool) {
	c, ok := commands[strings.ToLower(strings.TrimSpace(text))]
	return c, ok
}

func (b *Bot) command(ctx context.Context, conversation string, c command) (string, error) {
	switch c {
	case cmdHelp:
		return HelpMessage, nil
	case cmdReset:
		if err := b.cfg.History.Reset(ctx, conversation, b.cfg.Now()); err != nil {
			return "", fmt.Errorf("bot: reset %s: %w", conversation, err)
		}
		return ResetMessage, nil
	}
	return "", fmt.Errorf("bot: unknown command %v", c)
}
