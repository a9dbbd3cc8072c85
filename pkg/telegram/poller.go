package telegram

import (
	"context"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"
)

// Message is one inbound chat message from the configured chat.
type Message struct {
	ChatID int64
	Text   string
}

// Poller drives the getUpdates long-poll and forwards messages from the
// configured chat. Messages from any other chat are logged and dropped.
type Poller struct {
	client   *Client
	messages chan<- Message
	offset   int64
}

func NewPoller(client *Client, messages chan<- Message) *Poller {
	return &Poller{client: client, messages: messages}
}

// Run polls until ctx is done. A failed poll backs off for five seconds; a
// successful one rests for one second so a busy chat cannot turn this loop
// into a hot spin.
func (p *Poller) Run(ctx context.Context) error {
	dlog.Info(ctx, "chat poller started")
	for ctx.Err() == nil {
		updates, err := p.client.getUpdates(ctx, p.offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			dlog.Warnf(ctx, "poll failed, retrying in 5s: %v", err)
			dtime.SleepWithContext(ctx, 5*time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			if u.Message.Text == "" {
				continue
			}
			if strconv.FormatInt(u.Message.Chat.ID, 10) != p.client.chatID {
				dlog.Infof(ctx, "ignoring message from foreign chat %d", u.Message.Chat.ID)
				continue
			}
			select {
			case p.messages <- Message{ChatID: u.Message.Chat.ID, Text: u.Message.Text}:
			case <-ctx.Done():
				return nil
			}
		}
		dtime.SleepWithContext(ctx, time.Second)
	}
	return nil
}
