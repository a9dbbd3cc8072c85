package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/server/state"
	"github.com/vpnsentinel/vpnsentinel/pkg/telegram"
)

type eventKind int

const (
	evClientConnected eventKind = iota
	evIPChanged
	evNoClients
)

type event struct {
	kind     eventKind
	clientID string
	entry    state.Entry
	oldIP    string
	newIP    string
}

// Notifier translates fleet events into chat messages. Enqueueing never
// blocks: when the transport is disabled or the queue is full the event is
// dropped, because a lost notification must never slow down ingestion.
type Notifier struct {
	send          func(ctx context.Context, text string) bool // nil when the transport is disabled
	instanceID    string
	clientTimeout time.Duration
	events        chan event

	// The no-clients alert fires at most once per transition to zero: the
	// sweep that empties the store arms it, a delivered message marks it
	// sent, and any accepted keepalive disarms it again.
	mu            sync.Mutex
	noClientsDue  bool
	noClientsSent bool
}

// NewNotifier returns a Notifier delivering through client. A nil client
// turns every operation into a cheap no-op.
func NewNotifier(client *telegram.Client, instanceID string, clientTimeout time.Duration) *Notifier {
	n := &Notifier{
		instanceID:    instanceID,
		clientTimeout: clientTimeout,
		events:        make(chan event, 16),
	}
	if client != nil {
		n.send = client.SendMessage
	}
	return n
}

// Run delivers queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.events:
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev event) {
	var text string
	switch ev.kind {
	case evClientConnected:
		text = fmt.Sprintf(
			"✅ <b>VPN Connected!</b>\n"+
				"Client: <code>%s</code>\n"+
				"IP: <code>%s</code>\n"+
				"Location: %s (%s)\n"+
				"Provider: %s\n"+
				"DNS: %s / %s",
			ev.clientID, ev.entry.IP, ev.entry.Location, ev.entry.Region,
			ev.entry.Provider, ev.entry.DNSLoc, ev.entry.DNSColo)
	case evIPChanged:
		text = fmt.Sprintf(
			"🔄 <b>VPN IP Changed!</b>\n"+
				"Client: <code>%s</code>\n"+
				"Old IP: <code>%s</code>\n"+
				"New IP: <code>%s</code>\n"+
				"Location: %s",
			ev.clientID, ev.oldIP, ev.newIP, ev.entry.Location)
	case evNoClients:
		text = fmt.Sprintf(
			"⚠️ <b>No VPN Clients Connected</b>\n"+
				"Every client exceeded the %s timeout.",
			n.clientTimeout)
	}
	ok := n.dispatch(ctx, text)
	if ok && ev.kind == evNoClients {
		n.mu.Lock()
		n.noClientsSent = true
		n.mu.Unlock()
	}
}

func (n *Notifier) dispatch(ctx context.Context, text string) bool {
	if n.send == nil {
		return true
	}
	ok := n.send(ctx, text)
	if ok {
		notificationsTotal.WithLabelValues("sent").Inc()
	} else {
		notificationsTotal.WithLabelValues("failed").Inc()
	}
	return ok
}

func (n *Notifier) enqueue(ctx context.Context, ev event) {
	if n.send == nil {
		return
	}
	select {
	case n.events <- ev:
	default:
		dlog.Warnf(ctx, "notification queue full, dropping event %d for %s", ev.kind, ev.clientID)
	}
}

// ServerStarted announces the server synchronously; startup is the one moment
// where blocking on the chat transport is acceptable.
func (n *Notifier) ServerStarted(ctx context.Context) {
	n.dispatch(ctx, fmt.Sprintf(
		"🚀 <b>VPN Sentinel Server Started</b>\n"+
			"Instance: <code>%s</code>\n"+
			"Client timeout: %s\n"+
			"Time: %s",
		n.instanceID, n.clientTimeout, time.Now().UTC().Format(time.RFC3339)))
}

// ServerStopped announces a clean shutdown, best effort.
func (n *Notifier) ServerStopped(ctx context.Context) {
	n.dispatch(ctx, fmt.Sprintf(
		"🛑 <b>VPN Sentinel Server Stopped</b>\n"+
			"Instance: <code>%s</code>",
		n.instanceID))
}

// ClientConnected reports a first contact since start or since eviction.
func (n *Notifier) ClientConnected(ctx context.Context, id string, entry state.Entry) {
	n.enqueue(ctx, event{kind: evClientConnected, clientID: id, entry: entry})
}

// IPChanged reports that a known client now egresses from a different IP.
func (n *Notifier) IPChanged(ctx context.Context, id string, entry state.Entry, oldIP, newIP string) {
	n.enqueue(ctx, event{kind: evIPChanged, clientID: id, entry: entry, oldIP: oldIP, newIP: newIP})
}

// KeepaliveAccepted disarms the no-clients alert.
func (n *Notifier) KeepaliveAccepted() {
	n.mu.Lock()
	n.noClientsDue = false
	n.noClientsSent = false
	n.mu.Unlock()
}

// StoreEmptied arms the no-clients alert; the next SweepTick delivers it.
func (n *Notifier) StoreEmptied() {
	n.mu.Lock()
	n.noClientsDue = true
	n.mu.Unlock()
}

// SweepTick queues the no-clients alert when it is armed and not yet
// delivered. An undelivered alert is retried on the next sweep.
func (n *Notifier) SweepTick(ctx context.Context) {
	n.mu.Lock()
	due := n.noClientsDue && !n.noClientsSent
	n.mu.Unlock()
	if due {
		n.enqueue(ctx, event{kind: evNoClients})
	}
}
