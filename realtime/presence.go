package realtime

import (
	"sort"
	"sync"
	"time"
)

// Presence records the last heartbeat per player per session. It is
// advisory and rebuilt as clients reconnect.
type Presence struct {
	mu   sync.Mutex
	seen map[string]map[string]time.Time
	Now  func() time.Time
}

func NewPresence() *Presence {
	return &Presence{seen: map[string]map[string]time.Time{}, Now: time.Now}
}

func (p *Presence) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Track marks a player online and reports whether they were offline.
func (p *Presence) Track(sessionID, playerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	players, ok := p.seen[sessionID]
	if !ok {
		players = map[string]time.Time{}
		p.seen[sessionID] = players
	}
	_, was := players[playerID]
	players[playerID] = p.now()
	return !was
}

// Heartbeat refreshes a player. It is Track under another name so clients
// may send either.
func (p *Presence) Heartbeat(sessionID, playerID string) bool {
	return p.Track(sessionID, playerID)
}

// Untrack removes a player and reports whether they were online.
func (p *Presence) Untrack(sessionID, playerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	players, ok := p.seen[sessionID]
	if !ok {
		return false
	}
	if _, was := players[playerID]; !was {
		return false
	}
	delete(players, playerID)
	if len(players) == 0 {
		delete(p.seen, sessionID)
	}
	return true
}

// Online lists a session's players, sorted.
func (p *Presence) Online(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.seen[sessionID]))
	for id := range p.seen[sessionID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sweep drops players not seen within ttl and returns them by session.
func (p *Presence) Sweep(ttl time.Duration) map[string][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-ttl)
	gone := map[string][]string{}
	for sid, players := range p.seen {
		for pid, at := range players {
			if at.Before(cutoff) {
				delete(players, pid)
				gone[sid] = append(gone[sid], pid)
			}
		}
		if len(players) == 0 {
			delete(p.seen, sid)
		}
		sort.Strings(gone[sid])
	}
	return gone
}
