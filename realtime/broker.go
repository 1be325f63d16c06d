// Package realtime propagates session changes to every connected
// participant and tracks who is online. The persisted session record is
// the source of truth; updates only announce changes to it.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nathoo/lorecore/types"
)

// Update kinds.
const (
	KindState    = "state"
	KindTurn     = "turn"
	KindNode     = "node"
	KindJoin     = "join"
	KindLeave    = "leave"
	KindPresence = "presence"
)

// Update is one message on a session's feed.
type Update struct {
	SessionID           string              `json:"session_id"`
	Kind                string              `json:"kind"`
	Version             int64               `json:"version"`
	CurrentNodeID       string              `json:"current_node_id,omitempty"`
	Location            string              `json:"location,omitempty"`
	CurrentTurnPlayerID string              `json:"current_turn_player_id,omitempty"`
	TurnOrder           []string            `json:"turn_order,omitempty"`
	StoryFlags          map[string]any      `json:"story_flags,omitempty"`
	Status              types.SessionStatus `json:"status,omitempty"`
	Online              []string            `json:"online,omitempty"`
	Events              []types.Event       `json:"events,omitempty"`
	At                  time.Time           `json:"at"`
}

// Broker fans updates out to a session's subscribers. Subscribers of one
// session see updates in publish order.
type Broker interface {
	Publish(ctx context.Context, u Update) error
	// Subscribe returns a feed and a cancel func that closes it.
	Subscribe(ctx context.Context, sessionID string) (<-chan Update, func(), error)
	Close() error
}

// subscriberBuffer bounds each subscriber's backlog. A slow subscriber
// loses updates rather than stalling the session.
const subscriberBuffer = 64

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan Update]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Update]struct{}{}}
}

func (b *MemoryBroker) Publish(ctx context.Context, u Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[u.SessionID] {
		select {
		case ch <- u:
		default:
			slog.WarnContext(ctx, "subscriber backlog full, update dropped", "session", u.SessionID, "kind", u.Kind)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, sessionID string) (<-chan Update, func(), error) {
	ch := make(chan Update, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}, nil
	}
	set, ok := b.subs[sessionID]
	if !ok {
		set = map[chan Update]struct{}{}
		b.subs[sessionID] = set
	}
	set[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sessionID][ch]; !ok {
				return
			}
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}
