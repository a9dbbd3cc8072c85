package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"
)

// Command is one entry of the static dispatch table. Handle returns the reply
// text; it must not mutate shared state.
type Command struct {
	Name   string // without the leading slash
	Help   string
	Handle func(ctx context.Context) string
}

// Router matches inbound messages against a fixed command table and replies
// through the client. The table is immutable after construction.
type Router struct {
	client   *Client
	commands []Command
}

func NewRouter(client *Client, commands []Command) *Router {
	return &Router{client: client, commands: commands}
}

// Run consumes messages until ctx is done or the channel closes.
func (r *Router) Run(ctx context.Context, messages <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			reply := r.dispatch(ctx, msg.Text)
			if reply != "" {
				r.client.SendMessage(ctx, reply)
			}
		}
	}
}

func (r *Router) dispatch(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if !strings.HasPrefix(text, "/") {
		return "Hello! I watch your VPN clients.\n\n" + r.catalog()
	}
	word := strings.Fields(text)[0]
	name := strings.TrimPrefix(word, "/")
	for _, cmd := range r.commands {
		if cmd.Name == name {
			dlog.Infof(ctx, "chat command /%s", name)
			return cmd.Handle(ctx)
		}
	}
	return fmt.Sprintf("Unknown command /%s.\n\n%s", name, r.catalog())
}

func (r *Router) catalog() string {
	sb := strings.Builder{}
	sb.WriteString("Available commands:\n")
	for _, cmd := range r.commands {
		fmt.Fprintf(&sb, "/%s - %s\n", cmd.Name, cmd.Help)
	}
	return sb.String()
}
