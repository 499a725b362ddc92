// Package permissions implements the Permission Manager (C4): per-agent
// immutable permission bundles with mutable action counters, resolved
// against global security-mode presets and tool-name normalization.
package permissions

import (
	"sync"

	"github.com/trioctl/trio/pkg/models"
)

// ActionClass is one of the counted categories of tool activity.
type ActionClass string

const (
	ActionReadFile    ActionClass = "readFile"
	ActionWriteFile   ActionClass = "writeFile"
	ActionToolCall    ActionClass = "toolCall"
	ActionNetworkCall ActionClass = "networkCall"
)

// aliases folds tool names onto a canonical form before matching, so
// "shell" and "exec" (and namespaced "group:name" forms) share one entry
// in an Allowed/Restricted set.
var aliases = map[string]string{
	"shell": "exec",
	"bash":  "exec",
	"sh":    "exec",
}

// Normalize folds a tool name onto its canonical form for allow/deny
// matching. Namespaced names (mcp:search, fs:write) are left intact so
// group-level entries (e.g. "mcp:*") can match them.
func Normalize(name string) string {
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}

// ClassifyAction derives the ActionClass a tool call should be counted and
// checked under, from its normalized name. Unrecognized names fall back to
// ActionToolCall so they still accrue against MaxToolCalls.
func ClassifyAction(toolName string) ActionClass {
	switch Normalize(toolName) {
	case "write_file", "edit_file", "apply_patch", "write", "file_write":
		return ActionWriteFile
	case "read_file", "list_files", "read", "file_read":
		return ActionReadFile
	case "web_search", "web_fetch", "network_call":
		return ActionNetworkCall
	default:
		return ActionToolCall
	}
}

// counters tracks per-action-class call counts for one agent.
type counters struct {
	mu     sync.Mutex
	counts map[ActionClass]int
}

func newCounters() *counters {
	return &counters{counts: make(map[ActionClass]int)}
}

func (c *counters) increment(class ActionClass) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[class]++
	return c.counts[class]
}

// Manager holds the immutable Permissions bundle and mutable counters for
// every registered agent.
type Manager struct {
	mu       sync.RWMutex
	bundles  map[string]models.Permissions
	counters map[string]*counters
	mode     models.SecurityMode
}

// New constructs a Manager whose per-task overrides are bounded by the
// given global security mode.
func New(mode models.SecurityMode) *Manager {
	return &Manager{
		bundles:  make(map[string]models.Permissions),
		counters: make(map[string]*counters),
		mode:     mode,
	}
}

// Mode returns the Manager's current global security mode.
func (m *Manager) Mode() models.SecurityMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SetMode updates the global security mode applied to agents registered
// from this point forward. Bundles already narrowed for in-flight agents
// are left as-is — a mode change takes effect for newly spawned agents,
// not ones already running, so a config hot-reload can never loosen an
// already-granted bundle out from under a live agent.
func (m *Manager) SetMode(mode models.SecurityMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Register attaches perms to agentID, narrowed by the active security
// mode's preset. Must be called before the agent's first tool call.
func (m *Manager) Register(agentID string, perms models.Permissions) {
	narrowed := narrowToMode(perms, m.mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[agentID] = narrowed
	m.counters[agentID] = newCounters()
}

// Forget drops an agent's bundle and counters once it is destroyed.
func (m *Manager) Forget(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, agentID)
	delete(m.counters, agentID)
}

// Check reports whether agentID may invoke toolName right now, classifying
// the call and incrementing the relevant counter as a side effect when
// allowed. It returns false (without incrementing) on any denial: unknown
// agent, restricted tool, name outside the allow set, or a counter at cap.
func (m *Manager) Check(agentID, toolName string, class ActionClass) (bool, string) {
	m.mu.RLock()
	perms, ok := m.bundles[agentID]
	cnt := m.counters[agentID]
	m.mu.RUnlock()
	if !ok {
		return false, "unknown agent"
	}

	normalized := Normalize(toolName)
	if !matches(perms, normalized) {
		return false, "tool not permitted: " + toolName
	}
	if class == ActionWriteFile && perms.ReadOnly {
		return false, "agent is read-only"
	}
	if class == ActionWriteFile && perms.FileSystemAccess != models.FSWrite {
		return false, "agent does not have write access"
	}
	if class == ActionNetworkCall && !perms.NetworkAccess {
		return false, "agent does not have network access"
	}

	if perms.MaxToolCalls > 0 && class == ActionToolCall {
		if cnt.increment(class) > perms.MaxToolCalls {
			return false, "tool call budget exceeded"
		}
		return true, ""
	}
	cnt.increment(class)
	return true, ""
}

// matches applies deny-beats-allow resolution with group-aware matching
// (an entry ending in ":*" matches any name sharing its namespace prefix).
func matches(perms models.Permissions, name string) bool {
	for _, r := range perms.Restricted {
		if matchPattern(r, name) {
			return false
		}
	}
	if len(perms.Allowed) == 0 {
		return true
	}
	for _, a := range perms.Allowed {
		if matchPattern(a, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if len(pattern) > 2 && pattern[len(pattern)-2:] == ":*" {
		prefix := pattern[:len(pattern)-1] // keep trailing ':'
		return len(name) > len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}

// narrowToMode clamps a requested Permissions bundle so it never exceeds
// the global security mode's ceiling, even if the caller asked for more.
func narrowToMode(perms models.Permissions, mode models.SecurityMode) models.Permissions {
	preset := presetFor(mode)
	if preset.ReadOnly {
		perms.ReadOnly = true
	}
	if !preset.NetworkAccess {
		perms.NetworkAccess = false
	}
	if preset.FileSystemAccess == models.FSNone {
		perms.FileSystemAccess = models.FSNone
	} else if preset.FileSystemAccess == models.FSRead && perms.FileSystemAccess == models.FSWrite {
		perms.FileSystemAccess = models.FSRead
	}
	if !preset.DangerousOperations {
		perms.DangerousOperations = false
	}
	if !preset.GitOperations {
		perms.GitOperations = false
	}
	if preset.MaxToolCalls > 0 && (perms.MaxToolCalls <= 0 || perms.MaxToolCalls > preset.MaxToolCalls) {
		perms.MaxToolCalls = preset.MaxToolCalls
	}
	return perms
}

// presetFor returns the ceiling Permissions for a global security mode.
func presetFor(mode models.SecurityMode) models.Permissions {
	switch mode {
	case models.SecurityStrict:
		return models.Permissions{
			ReadOnly:            true,
			NetworkAccess:       false,
			FileSystemAccess:    models.FSRead,
			DangerousOperations: false,
			GitOperations:       false,
			MaxToolCalls:        50,
		}
	case models.SecurityPermissive:
		return models.Permissions{
			NetworkAccess:       true,
			FileSystemAccess:    models.FSWrite,
			DangerousOperations: true,
			GitOperations:       true,
			MaxToolCalls:        0,
		}
	case models.SecurityDevelopment:
		return models.Permissions{
			NetworkAccess:       true,
			FileSystemAccess:    models.FSWrite,
			DangerousOperations: true,
			GitOperations:       true,
			MaxToolCalls:        1000,
		}
	default: // SecurityDefault
		return models.Permissions{
			NetworkAccess:       true,
			FileSystemAccess:    models.FSWrite,
			DangerousOperations: false,
			GitOperations:       true,
			MaxToolCalls:        200,
		}
	}
}
