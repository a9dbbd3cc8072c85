// Package state owns every piece of mutable server state: the client store,
// the first-seen set, and the server IP cache. Bundling them behind one lock
// keeps the store and the set consistent; a reader always observes either the
// pre-write or the post-write world, never a torn one.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/keepalive"
	"github.com/vpnsentinel/vpnsentinel/pkg/sanitize"
)

// Clock is the mechanism used by the State to get the current time.
type Clock interface {
	Now() time.Time
}

type wall struct{}

func (wall) Now() time.Time {
	return time.Now()
}

// Entry is the stored view of one client, keyed by client id in the store.
type Entry struct {
	LastSeen      string `json:"last_seen"`
	IP            string `json:"ip"`
	Location      string `json:"location"`
	Provider      string `json:"provider"`
	Country       string `json:"country"`
	City          string `json:"city"`
	Region        string `json:"region"`
	Timezone      string `json:"timezone"`
	DNSLoc        string `json:"dns_loc"`
	DNSColo       string `json:"dns_colo"`
	ClientVersion string `json:"client_version,omitempty"`
}

// Outcome reports what an Apply changed, so the caller can decide which
// events to emit without holding the lock.
type Outcome struct {
	Entry     Entry
	IsNew     bool
	IPChanged bool
	OldIP     string
}

// State is the total state of the server. A zero State is invalid; use New.
type State struct {
	clock Clock

	mu        sync.RWMutex
	clients   map[string]Entry
	firstSeen map[string]struct{}
	serverIP  string
	serverIPT time.Time
	serverTTL time.Duration
}

// New returns an empty State. A nil clock means wall time. serverIPTTL bounds
// how long a resolved server IP is trusted; zero means forever.
func New(clock Clock, serverIPTTL time.Duration) *State {
	if clock == nil {
		clock = wall{}
	}
	return &State{
		clock:     clock,
		clients:   make(map[string]Entry),
		firstSeen: make(map[string]struct{}),
		serverTTL: serverIPTTL,
	}
}

// Apply stores the already-sanitized record under its client id, marks the id
// as seen, and reports whether this is a first contact or an IP change. The
// write is atomic at entry granularity.
func (s *State) Apply(rec keepalive.Record) Outcome {
	entry := Entry{
		LastSeen:      s.clock.Now().UTC().Format(time.RFC3339),
		IP:            rec.PublicIP,
		Location:      displayLocation(rec.City, rec.Country),
		Provider:      rec.Org,
		Country:       rec.Country,
		City:          rec.City,
		Region:        rec.Region,
		Timezone:      rec.Timezone,
		DNSLoc:        rec.DNSLoc,
		DNSColo:       rec.DNSColo,
		ClientVersion: rec.ClientVersion,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.firstSeen[rec.ClientID]
	old, exists := s.clients[rec.ClientID]

	out := Outcome{
		Entry: entry,
		IsNew: !seen,
	}
	if exists && old.IP != entry.IP {
		out.IPChanged = true
		out.OldIP = old.IP
	}

	s.clients[rec.ClientID] = entry
	s.firstSeen[rec.ClientID] = struct{}{}
	return out
}

// Get returns the entry for one client id.
func (s *State) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.clients[id]
	return e, ok
}

// Snapshot returns a point-in-time copy of the whole store.
func (s *State) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := make(map[string]Entry, len(s.clients))
	for k, v := range s.clients {
		c[k] = v
	}
	return c
}

// Count returns the number of stored clients.
func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Evict removes every entry whose last_seen is older than timeout, together
// with its first-seen membership, and returns the evicted ids. Entries whose
// last_seen cannot be parsed are skipped, not evicted.
func (s *State) Evict(ctx context.Context, timeout time.Duration) []string {
	now := s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, entry := range s.clients {
		lastSeen, err := ParseLastSeen(entry.LastSeen)
		if err != nil {
			dlog.Warnf(ctx, "cleanup: client %s has unparsable last_seen %q: %v", id, entry.LastSeen, err)
			continue
		}
		if now.Sub(lastSeen) > timeout {
			delete(s.clients, id)
			delete(s.firstSeen, id)
			evicted = append(evicted, id)
			dlog.Infof(ctx, "cleanup: evicted stale client %s (last seen %s)", id, entry.LastSeen)
		}
	}
	return evicted
}

// ParseLastSeen parses an ISO-8601 timestamp, tolerating a trailing Z, an
// explicit offset, or no zone designator at all. A naive timestamp is taken
// as UTC.
func ParseLastSeen(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO-8601", s)
}

// CachedServerIP returns the server's own egress IP, or "" when it has not
// been resolved yet or the cached value has outlived its TTL.
func (s *State) CachedServerIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.serverIP == "" {
		return ""
	}
	if s.serverTTL > 0 && s.clock.Now().Sub(s.serverIPT) > s.serverTTL {
		return ""
	}
	return s.serverIP
}

// SetServerIP caches the server's own egress IP. Unparsable input is ignored
// so a failed resolution never poisons the cache.
func (s *State) SetServerIP(ip string) bool {
	clean, ok := sanitize.PublicIP(ip)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverIP = clean
	s.serverIPT = s.clock.Now()
	return true
}

// ReviveServerIP restarts the TTL on the last known egress IP and returns
// it, or "" when no IP was ever resolved. Called when a refresh attempt
// fails, so classification keeps the previous value instead of flapping to
// unknown on a provider hiccup.
func (s *State) ReviveServerIP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverIP == "" {
		return ""
	}
	s.serverIPT = s.clock.Now()
	return s.serverIP
}

func displayLocation(city, country string) string {
	switch {
	case city != sanitize.UnknownLoc && country != sanitize.UnknownLoc:
		return city + ", " + country
	case city != sanitize.UnknownLoc:
		return city
	case country != sanitize.UnknownLoc:
		return country
	default:
		return sanitize.UnknownLoc
	}
}
