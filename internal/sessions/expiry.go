package sessions

import (
	"strings"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

// Reset mode constants for session expiry.
const (
	ResetModeNever     = "never"
	ResetModeDaily     = "daily"
	ResetModeIdle      = "idle"
	ResetModeDailyIdle = "daily+idle"
)

// ResetConfig controls when a `serve`-mode session is automatically ended
// so a fresh one starts on the next turn.
type ResetConfig struct {
	// Mode is the reset mode: "daily", "idle", "daily+idle", or "never" (default).
	Mode string

	// AtHour is the hour (0-23) to reset sessions when mode includes "daily".
	AtHour int

	// IdleMinutes is the number of minutes of inactivity before reset when
	// mode includes "idle". Inactivity is measured from the session's
	// latest snapshot, since Session itself has no per-turn timestamp.
	IdleMinutes int
}

// SessionExpiry checks whether a live session should be reset.
type SessionExpiry struct {
	cfg      ResetConfig
	nowFunc  func() time.Time
	location *time.Location
}

// NewSessionExpiry creates a new SessionExpiry checker.
func NewSessionExpiry(cfg ResetConfig) *SessionExpiry {
	return &SessionExpiry{cfg: cfg, nowFunc: time.Now, location: time.Local}
}

// NewSessionExpiryWithLocation creates a SessionExpiry with a specific timezone.
func NewSessionExpiryWithLocation(cfg ResetConfig, loc *time.Location) *SessionExpiry {
	if loc == nil {
		loc = time.Local
	}
	return &SessionExpiry{cfg: cfg, nowFunc: time.Now, location: loc}
}

// SetNowFunc sets a custom time function for testing.
func (e *SessionExpiry) SetNowFunc(fn func() time.Time) {
	e.nowFunc = fn
}

// CheckExpiry returns true if the session should be reset. lastActivity is
// the CreatedAt of the session's latest snapshot (or StartedAt if none
// exists yet).
func (e *SessionExpiry) CheckExpiry(session *models.Session, lastActivity time.Time) bool {
	if session == nil || session.Status != models.SessionActive {
		return false
	}
	now := e.nowFunc()
	mode := strings.ToLower(strings.TrimSpace(e.cfg.Mode))

	switch mode {
	case ResetModeNever, "":
		return false
	case ResetModeDaily:
		return e.checkDailyReset(lastActivity, now)
	case ResetModeIdle:
		return e.checkIdleReset(lastActivity, now)
	case ResetModeDailyIdle:
		return e.checkDailyReset(lastActivity, now) || e.checkIdleReset(lastActivity, now)
	default:
		return false
	}
}

// checkDailyReset returns true if lastActivity predates today's (or, before
// the reset hour, yesterday's) configured reset time.
func (e *SessionExpiry) checkDailyReset(lastActivity, now time.Time) bool {
	if lastActivity.IsZero() {
		return false
	}
	atHour := e.cfg.AtHour
	if atHour < 0 || atHour > 23 {
		atHour = 0
	}

	nowInLoc := now.In(e.location)
	lastActivityInLoc := lastActivity.In(e.location)

	todayReset := time.Date(nowInLoc.Year(), nowInLoc.Month(), nowInLoc.Day(), atHour, 0, 0, 0, e.location)
	if nowInLoc.Hour() < atHour {
		todayReset = todayReset.AddDate(0, 0, -1)
	}

	return lastActivityInLoc.Before(todayReset)
}

// checkIdleReset returns true if lastActivity is older than the configured
// idle threshold.
func (e *SessionExpiry) checkIdleReset(lastActivity, now time.Time) bool {
	if e.cfg.IdleMinutes <= 0 || lastActivity.IsZero() {
		return false
	}
	idleDuration := time.Duration(e.cfg.IdleMinutes) * time.Minute
	return now.Sub(lastActivity) >= idleDuration
}

// GetNextResetTime returns the next scheduled daily reset time, or the zero
// value if the configured mode has no daily component.
func (e *SessionExpiry) GetNextResetTime() time.Time {
	mode := strings.ToLower(strings.TrimSpace(e.cfg.Mode))
	if mode != ResetModeDaily && mode != ResetModeDailyIdle {
		return time.Time{}
	}

	now := e.nowFunc().In(e.location)
	atHour := e.cfg.AtHour
	if atHour < 0 || atHour > 23 {
		atHour = 0
	}

	nextReset := time.Date(now.Year(), now.Month(), now.Day(), atHour, 0, 0, 0, e.location)
	if now.Hour() >= atHour {
		nextReset = nextReset.AddDate(0, 0, 1)
	}
	return nextReset
}

// ShouldResetSession is a convenience wrapper using lastActivity derived
// from the session itself when no snapshot timestamp is available.
func ShouldResetSession(session *models.Session, cfg ResetConfig) bool {
	expiry := NewSessionExpiry(cfg)
	lastActivity := session.StartedAt
	if session.EndedAt != nil {
		lastActivity = *session.EndedAt
	}
	return expiry.CheckExpiry(session, lastActivity)
}
