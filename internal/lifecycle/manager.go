// Package lifecycle implements the Lifecycle Manager (C5): the agent state
// table, its periodic sweep (timeout-driven cancellation, grace-windowed
// reaping into destroyed), and shutdown broadcast.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trioctl/trio/pkg/models"
)

// Publisher is the narrow view of the Event Bus (C3) the manager needs.
type Publisher interface {
	Publish(event models.Event)
}

// entry is the manager's live record for one agent: the public
// AgentInstance plus the cancellation handle the sweep drives.
type entry struct {
	instance models.AgentInstance
	cancel   context.CancelFunc
	deadline time.Time
}

// Config sizes the sweep cadence and the post-terminal grace window.
type Config struct {
	SweepInterval time.Duration
	GraceWindow   time.Duration
	ShutdownGrace time.Duration
}

// DefaultConfig matches §4.5's defaults. ShutdownGrace is kept above
// GraceWindow so a terminal agent already past GraceWindow has actually
// been reaped by the periodic sweep before Shutdown's wait loop gives up
// and falls back to force-destroying stragglers.
func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Second,
		GraceWindow:   30 * time.Second,
		ShutdownGrace: 35 * time.Second,
	}
}

// Manager owns the live agent state table and its sweep.
type Manager struct {
	cfg Config
	bus Publisher

	mu      sync.Mutex
	entries map[string]*entry

	cron *cron.Cron
}

// New constructs a Manager. Call Start to begin the periodic sweep.
func New(cfg Config, bus Publisher) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 35 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		bus:     bus,
		entries: make(map[string]*entry),
	}
}

// Start launches the sweep on its own goroutine, independent of any single
// agent's lifetime. The sweep cadence is expressed as a cron "@every" spec
// so the same scheduling primitive that drives minute-granularity jobs
// elsewhere in the runtime also drives this sub-minute one.
func (m *Manager) Start() error {
	m.cron = cron.New()
	_, err := m.cron.AddFunc("@every "+m.cfg.SweepInterval.String(), m.sweep)
	if err != nil {
		return models.WrapError(models.ErrInternal, "failed to schedule lifecycle sweep", err)
	}
	m.cron.Start()
	return nil
}

// Stop halts the sweep. It does not touch live agents; call Shutdown for
// that.
func (m *Manager) Stop() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
	}
}

// Register adds a new agent in the spawning state with a cancellation
// handle and a deadline derived from timeoutMs (zero means no deadline).
func (m *Manager) Register(agentID string, task models.MiniAgentTask) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	var deadline time.Time
	if task.TimeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(task.TimeoutMs) * time.Millisecond)
	}

	m.mu.Lock()
	m.entries[agentID] = &entry{
		instance: models.AgentInstance{
			ID:        agentID,
			Task:      task,
			State:     models.AgentSpawning,
			StartedAt: time.Now(),
		},
		cancel:   cancel,
		deadline: deadline,
	}
	m.mu.Unlock()

	m.publish(models.EventSpawnRequested, agentID, nil)
	return ctx, cancel
}

// Transition moves agentID to state, recording endedAt on entry into a
// terminal state. It is a no-op if agentID is unknown (already destroyed
// or never registered).
func (m *Manager) Transition(agentID string, state models.AgentState, lastError string) {
	m.mu.Lock()
	e, ok := m.entries[agentID]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.instance.State = state
	if lastError != "" {
		e.instance.LastError = lastError
	}
	if state.IsTerminal() {
		now := time.Now()
		e.instance.EndedAt = &now
	}
	m.mu.Unlock()

	m.publish(eventFor(state), agentID, map[string]any{"lastError": lastError})
}

// UpdateCounters overwrites the counters for a live agent (called as the
// Spawner's inner loop observes new tool calls and token usage).
func (m *Manager) UpdateCounters(agentID string, counters models.AgentCounters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[agentID]; ok {
		e.instance.Counters = counters
	}
}

// Get returns a snapshot of an agent's current instance.
func (m *Manager) Get(agentID string) (models.AgentInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[agentID]
	if !ok {
		return models.AgentInstance{}, false
	}
	return e.instance, true
}

// Cancel requests cancellation of a live agent, transitioning it to
// AgentCancelled and invoking its cancel func. Returns false if agentID is
// unknown or already terminal.
func (m *Manager) Cancel(agentID string) bool {
	m.mu.Lock()
	e, ok := m.entries[agentID]
	if !ok || e.instance.State.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	e.instance.State = models.AgentCancelled
	now := time.Now()
	e.instance.EndedAt = &now
	cancel := e.cancel
	m.mu.Unlock()

	cancel()
	m.publish(models.EventAgentCancelled, agentID, map[string]any{"reason": "requested"})
	return true
}

// List returns a snapshot of every live (not yet destroyed) agent.
func (m *Manager) List() []models.AgentInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AgentInstance, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.instance)
	}
	return out
}

// sweep runs one pass: deadline-expired running agents become cancelled;
// terminal agents past their grace window are reaped into destroyed and
// dropped from the live table.
func (m *Manager) sweep() {
	now := time.Now()

	var toCancel []*entry
	var toDestroy []string

	m.mu.Lock()
	for id, e := range m.entries {
		if !e.instance.State.IsTerminal() && !e.deadline.IsZero() && now.After(e.deadline) {
			e.instance.State = models.AgentCancelled
			endedAt := now
			e.instance.EndedAt = &endedAt
			toCancel = append(toCancel, e)
			continue
		}
		if e.instance.State.IsTerminal() && e.instance.EndedAt != nil && now.Sub(*e.instance.EndedAt) > m.cfg.GraceWindow {
			toDestroy = append(toDestroy, id)
		}
	}
	for _, id := range toDestroy {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, e := range toCancel {
		e.cancel()
		m.publish(models.EventAgentCancelled, e.instance.ID, map[string]any{"reason": "timeout"})
	}
	for _, id := range toDestroy {
		m.publish(models.EventCleanupInitiated, id, nil)
		m.publish(models.EventAgentDestroyed, id, nil)
	}
}

// Shutdown broadcasts cancellation to every live agent, waits up to the
// configured shutdown grace period, then forces destroyed on stragglers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var cancels []context.CancelFunc
	for _, e := range m.entries {
		cancels = append(cancels, e.cancel)
	}
	m.mu.Unlock()

	for _, c := range cancels {
		c()
	}

	deadline := time.Now().Add(m.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		remaining := len(m.entries)
		m.mu.Unlock()
		if remaining == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	m.mu.Lock()
	stragglers := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		stragglers = append(stragglers, e)
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	// Every agent's event sequence must end ..., (terminal), CLEANUP_INITIATED,
	// AGENT_DESTROYED regardless of whether it reaped naturally via sweep()
	// or got swept up here as a straggler: an entry cancelled but not yet
	// terminal when the grace period ran out still needs its terminal event
	// published before cleanup starts.
	for _, e := range stragglers {
		if !e.instance.State.IsTerminal() {
			e.instance.State = models.AgentCancelled
			m.publish(models.EventAgentCancelled, e.instance.ID, map[string]any{"reason": "shutdown"})
		}
		m.publish(models.EventCleanupInitiated, e.instance.ID, map[string]any{"forced": true})
		m.publish(models.EventAgentDestroyed, e.instance.ID, map[string]any{"forced": true})
	}
}

func (m *Manager) publish(evtType models.EventType, agentID string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	e := models.NewEvent(evtType, agentID)
	for k, v := range payload {
		e = e.WithPayload(k, v)
	}
	m.bus.Publish(e)
}

func eventFor(state models.AgentState) models.EventType {
	switch state {
	case models.AgentRunning:
		return models.EventAgentSpawned
	case models.AgentCompleted:
		return models.EventAgentCompleted
	case models.AgentFailed:
		return models.EventAgentFailed
	case models.AgentCancelled:
		return models.EventAgentCancelled
	case models.AgentDestroyed:
		return models.EventAgentDestroyed
	default:
		return models.EventProgressUpdate
	}
}
