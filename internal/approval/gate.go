// Package approval implements the Approval Gate (C2): it classifies each
// tool call's risk, auto-approves what the active policy mode and
// per-session counters allow, and otherwise suspends the caller until an
// external decision (a human prompt, a CLI handler) resolves the request or
// its decision window elapses.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trioctl/trio/internal/ratelimit"
	"github.com/trioctl/trio/pkg/models"
)

// Publisher is the narrow view of the Event Bus (C3) the Gate needs.
// Defined locally so this package does not import internal/eventbus.
type Publisher interface {
	Publish(event models.Event)
}

// Request is a single pending-or-resolved approval decision.
type Request struct {
	ID          string
	Call        models.ToolCall
	Risk        models.RiskLevel
	SessionID   string
	AgentID     string
	RequestedAt time.Time
	ExpiresAt   time.Time
	Status      models.ApprovalStatus
	Reason      string
}

const pollInterval = 100 * time.Millisecond

// Gate is the Approval Gate. It satisfies registry.Approver.
type Gate struct {
	mu       sync.Mutex
	policy   Policy
	bus      Publisher
	pending  map[string]*Request
	sessions map[string]map[models.RiskLevel]int

	rateLimit ratelimit.Config
	buckets   map[string]*ratelimit.Bucket
}

// New constructs a Gate with the given policy. bus may be nil, in which
// case approval events are simply not published.
func New(policy Policy, bus Publisher) *Gate {
	return &Gate{
		policy:    policy,
		bus:       bus,
		pending:   make(map[string]*Request),
		sessions:  make(map[string]map[models.RiskLevel]int),
		rateLimit: ratelimit.DefaultConfig(),
		buckets:   make(map[string]*ratelimit.Bucket),
	}
}

// SetRateLimit replaces the per-session approval-request rate limit. A
// session exceeding it has its calls denied outright, independent of the
// policy's own per-risk-level auto-approval caps — this bounds request
// throughput, not approval counts.
func (g *Gate) SetRateLimit(cfg ratelimit.Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rateLimit = cfg
	g.buckets = make(map[string]*ratelimit.Bucket)
}

// allowRate reports whether sessionID may make another approval request
// right now, lazily creating its token bucket on first use.
func (g *Gate) allowRate(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.rateLimit.Enabled {
		return true
	}
	bucket, ok := g.buckets[sessionID]
	if !ok {
		bucket = ratelimit.NewBucket(g.rateLimit)
		g.buckets[sessionID] = bucket
	}
	return bucket.Allow()
}

// SetPolicy replaces the active policy. Safe for concurrent use.
func (g *Gate) SetPolicy(p Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}

// RequestApproval implements registry.Approver. It blocks until the call is
// auto-approved, externally decided, or its decision window expires.
func (g *Gate) RequestApproval(ctx context.Context, call models.ToolCall) (bool, string, error) {
	risk := ClassifyRisk(call)
	sessionID := SessionFromContext(ctx)

	if !g.allowRate(sessionID) {
		g.publish(models.EventApprovalComplete, call, risk, false, "rate limited")
		return false, "rate limited: too many approval requests", nil
	}

	if approved, reason, ok := g.tryAutoApprove(risk, sessionID); ok {
		g.publish(models.EventApprovalComplete, call, risk, approved, reason)
		return approved, reason, nil
	}

	req := &Request{
		ID:          uuid.NewString(),
		Call:        call,
		Risk:        risk,
		SessionID:   sessionID,
		RequestedAt: time.Now(),
		Status:      models.ApprovalPending,
	}
	g.mu.Lock()
	req.ExpiresAt = req.RequestedAt.Add(g.policy.DecisionWindow)
	g.pending[req.ID] = req
	g.mu.Unlock()

	g.publish(models.EventApprovalPending, call, risk, false, "")

	approved, reason := g.waitForDecision(ctx, req)

	g.mu.Lock()
	delete(g.pending, req.ID)
	g.mu.Unlock()

	g.publish(models.EventApprovalComplete, call, risk, approved, reason)
	return approved, reason, nil
}

// tryAutoApprove checks the policy mode and session counters without
// creating a pending request. The second return value is false when the
// call must instead go through the suspend-and-wait path.
func (g *Gate) tryAutoApprove(risk models.RiskLevel, sessionID string) (approved bool, reason string, decided bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.policy.autoApprove(risk) {
		return false, "", false
	}
	limit := g.policy.limitFor(risk)
	if limit > 0 {
		counts := g.sessions[sessionID]
		if counts == nil {
			counts = make(map[models.RiskLevel]int)
			g.sessions[sessionID] = counts
		}
		if counts[risk] >= limit {
			return false, "", false
		}
		counts[risk]++
	}
	return true, "auto-approved by policy " + string(g.policy.Mode), true
}

// waitForDecision polls the request's status until it is resolved
// externally, its context is cancelled, or its decision window elapses.
// Polling (rather than a condition variable per request) mirrors the
// teacher's WaitForApproval loop and keeps Approve/Deny free of per-request
// channel bookkeeping.
func (g *Gate) waitForDecision(ctx context.Context, req *Request) (bool, string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		g.mu.Lock()
		status := req.Status
		reason := req.Reason
		g.mu.Unlock()

		switch status {
		case models.ApprovalApproved:
			return true, reason
		case models.ApprovalDenied:
			return false, reason
		}

		if time.Now().After(req.ExpiresAt) {
			g.mu.Lock()
			req.Status = models.ApprovalDenied
			req.Reason = "approval timed out"
			g.mu.Unlock()
			return false, "approval timed out"
		}

		select {
		case <-ctx.Done():
			return false, "cancelled while awaiting approval"
		case <-ticker.C:
		}
	}
}

// Approve resolves a pending request as approved. It is a no-op if id is
// unknown or already resolved.
func (g *Gate) Approve(id, reason string) bool {
	return g.resolve(id, models.ApprovalApproved, reason)
}

// Deny resolves a pending request as denied.
func (g *Gate) Deny(id, reason string) bool {
	return g.resolve(id, models.ApprovalDenied, reason)
}

func (g *Gate) resolve(id string, status models.ApprovalStatus, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[id]
	if !ok || req.Status != models.ApprovalPending {
		return false
	}
	req.Status = status
	req.Reason = reason
	return true
}

// ListPending returns a snapshot of currently pending requests.
func (g *Gate) ListPending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, 0, len(g.pending))
	for _, r := range g.pending {
		if r.Status == models.ApprovalPending {
			out = append(out, *r)
		}
	}
	return out
}

func (g *Gate) publish(evtType models.EventType, call models.ToolCall, risk models.RiskLevel, approved bool, reason string) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(models.NewEvent(evtType, "").
		WithPayload("tool", call.Name).
		WithPayload("callId", call.ID).
		WithPayload("risk", string(risk)).
		WithPayload("approved", approved).
		WithPayload("reason", reason))
}

type sessionKey struct{}

// WithSession attaches a session id to ctx so the Gate can scope its
// per-session auto-approval counters. Callers that do not attach one share
// a single implicit "default" session.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext reads back the session id set by WithSession.
func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok && v != "" {
		return v
	}
	return "default"
}
