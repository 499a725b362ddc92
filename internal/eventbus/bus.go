// Package eventbus implements the Event Bus (C3): a typed, non-blocking
// publish path with synchronous delivery to subscribers registered before
// emit, a bounded ring history, and simple pattern detection over that
// history.
package eventbus

import (
	"sync"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

// DefaultHistorySize is the default ring buffer capacity.
const DefaultHistorySize = 1000

// Handler receives delivered events. It must not block for long — the bus
// applies no per-subscriber queueing, so a slow handler slows every
// publisher that shares the bus.
type Handler func(models.Event)

const wildcard = models.EventType("*")

type subscription struct {
	id      uint64
	evtType models.EventType
	handler Handler
	once    bool
}

// Bus is the Event Bus. The zero value is not usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subs        []*subscription
	nextID      uint64
	history     []models.Event
	historyCap  int
	historyNext int
	historyLen  int
	typeCounts  map[models.EventType]int
	recent      []time.Time // timestamps of all events, pruned to the last minute on read
}

// New constructs a Bus with the given ring history capacity. A
// non-positive size falls back to DefaultHistorySize.
func New(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{
		history:    make([]models.Event, historySize),
		historyCap: historySize,
		typeCounts: make(map[models.EventType]int),
	}
}

// Subscribe registers handler for events of exactly evtType. The returned
// function deregisters it.
func (b *Bus) Subscribe(evtType models.EventType, handler Handler) func() {
	return b.subscribe(evtType, handler, false)
}

// SubscribeAll registers handler for every event type published.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.subscribe(wildcard, handler, false)
}

// Once registers handler to fire at most one time for evtType, then
// deregister itself automatically.
func (b *Bus) Once(evtType models.EventType, handler Handler) func() {
	return b.subscribe(evtType, handler, true)
}

func (b *Bus) subscribe(evtType models.EventType, handler Handler, once bool) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, evtType: evtType, handler: handler, once: once}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e synchronously, in subscription order, to every
// handler registered before this call, then records it in history. Publish
// itself never blocks on a subscriber queue — there is none — but it does
// run each matching handler inline, so a handler that blocks delays
// Publish's return to the caller.
func (b *Bus) Publish(e models.Event) {
	b.mu.Lock()
	matching := make([]*subscription, 0, len(b.subs))
	var onceIDs []uint64
	for _, s := range b.subs {
		if s.evtType == wildcard || s.evtType == e.Type {
			matching = append(matching, s)
			if s.once {
				onceIDs = append(onceIDs, s.id)
			}
		}
	}
	if len(onceIDs) > 0 {
		filtered := b.subs[:0:0]
		remove := make(map[uint64]bool, len(onceIDs))
		for _, id := range onceIDs {
			remove[id] = true
		}
		for _, s := range b.subs {
			if !remove[s.id] {
				filtered = append(filtered, s)
			}
		}
		b.subs = filtered
	}

	b.history[b.historyNext] = e
	b.historyNext = (b.historyNext + 1) % b.historyCap
	if b.historyLen < b.historyCap {
		b.historyLen++
	}
	b.typeCounts[e.Type]++
	b.recent = append(b.recent, e.Timestamp)
	b.mu.Unlock()

	for _, s := range matching {
		s.handler(e)
	}
}

// History returns a defensive copy of the retained events, oldest first.
func (b *Bus) History() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Event, b.historyLen)
	start := 0
	if b.historyLen == b.historyCap {
		start = b.historyNext
	}
	for i := 0; i < b.historyLen; i++ {
		out[i] = b.history[(start+i)%b.historyCap]
	}
	return out
}

// Stats is a snapshot of bus activity.
type Stats struct {
	TypeCounts  map[models.EventType]int
	RecentCount int // events published in the last minute
}

// Stats returns per-type totals and a recent-minute count, pruning
// timestamps older than a minute as a side effect.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	kept := b.recent[:0]
	for _, ts := range b.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.recent = kept

	counts := make(map[models.EventType]int, len(b.typeCounts))
	for k, v := range b.typeCounts {
		counts[k] = v
	}
	return Stats{TypeCounts: counts, RecentCount: len(kept)}
}

// RapidFire reports whether at least k events of evtType were published
// within window, scanning retained history.
func (b *Bus) RapidFire(evtType models.EventType, k int, window time.Duration) bool {
	history := b.History()
	if len(history) == 0 {
		return false
	}
	cutoff := history[len(history)-1].Timestamp.Add(-window)
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Timestamp.Before(cutoff) {
			break
		}
		if e.Type == evtType {
			count++
			if count >= k {
				return true
			}
		}
	}
	return false
}

// LifecycleComplete reports whether agentID's history shows a spawn event
// followed by a terminal event followed by AGENT_DESTROYED, in that order.
func (b *Bus) LifecycleComplete(agentID string) bool {
	history := b.History()
	sawSpawn, sawTerminal, sawDestroyed := false, false, false
	for _, e := range history {
		if e.AgentID != agentID {
			continue
		}
		switch e.Type {
		case models.EventAgentSpawned:
			sawSpawn = true
		case models.EventAgentCompleted, models.EventAgentFailed, models.EventAgentCancelled:
			if sawSpawn {
				sawTerminal = true
			}
		case models.EventAgentDestroyed:
			if sawTerminal {
				sawDestroyed = true
			}
		}
	}
	return sawSpawn && sawTerminal && sawDestroyed
}
