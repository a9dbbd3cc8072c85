package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vpnsentinel/vpnsentinel/cmd/sentinel/cmd/server/state"
	"github.com/vpnsentinel/vpnsentinel/pkg/classify"
	"github.com/vpnsentinel/vpnsentinel/pkg/telegram"
)

// commands builds the static chat dispatch table. The table is assembled once
// at startup; /help closes over it to render the catalog.
func (s *service) commands() []telegram.Command {
	var table []telegram.Command
	table = []telegram.Command{
		{Name: "ping", Help: "server liveness and thresholds", Handle: s.cmdPing},
		{Name: "status", Help: "per-client fleet summary", Handle: s.cmdStatus},
		{Name: "help", Help: "this catalog", Handle: func(context.Context) string {
			sb := strings.Builder{}
			sb.WriteString("Available commands:\n")
			for _, cmd := range table {
				fmt.Fprintf(&sb, "/%s - %s\n", cmd.Name, cmd.Help)
			}
			return sb.String()
		}},
	}
	return table
}

func (s *service) cmdPing(context.Context) string {
	return fmt.Sprintf(
		"🏓 Pong!\n"+
			"Active clients: %d\n"+
			"Client timeout: %s\n"+
			"Uptime: %s\n"+
			"Server time: %s",
		s.state.Count(),
		s.env.ClientTimeout(),
		time.Since(s.startedAt).Round(time.Second),
		time.Now().UTC().Format(time.RFC3339))
}

func (s *service) cmdStatus(context.Context) string {
	snap := s.state.Snapshot()
	if len(snap) == 0 {
		return "No VPN clients connected."
	}
	serverIP := s.state.CachedServerIP()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sb := strings.Builder{}
	fmt.Fprintf(&sb, "📡 %d client(s):\n", len(ids))
	for _, id := range ids {
		e := snap[id]
		st := classify.Classify(e.IP, e.Country, e.DNSLoc, serverIP)
		fmt.Fprintf(&sb, "%s <code>%s</code> %s, %s, %s\n",
			statusEmoji(st), id, e.IP, e.Location, lastSeenPhrase(e, time.Now()))
	}
	return sb.String()
}

func statusEmoji(st classify.Status) string {
	switch st.Color() {
	case "red":
		return "🔴"
	case "yellow":
		return "🟡"
	default:
		return "🟢"
	}
}

// lastSeenPhrase humanizes how long ago an entry was refreshed. Unparsable
// timestamps fall back to the raw stored text.
func lastSeenPhrase(e state.Entry, now time.Time) string {
	t, err := state.ParseLastSeen(e.LastSeen)
	if err != nil {
		return e.LastSeen
	}
	return humanizeSince(now.UTC().Sub(t))
}

func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
}
