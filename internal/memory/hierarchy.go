package memory

import (
	"context"
	"fmt"

	"github.com/trioctl/trio/pkg/models"
)

// pinnedFacts fetches the "pinned facts" layer for a turn: knowledge
// entries ordered session -> project -> global, each layer filling the
// token budget left by the layer above it. The most specific layer is
// filled first and nothing is evicted to make room for a broader layer,
// so a session fact effectively overrides a global one under budget
// pressure, and an uncontested global fact still gets added when room
// remains, without a second "override" data type.
func (m *Manager) pinnedFacts(ctx context.Context, projectID, sessionID string, budget int) ([]*models.MemoryEntry, int, error) {
	if m == nil || m.backend == nil {
		return nil, 0, fmt.Errorf("memory manager not initialized")
	}
	if budget <= 0 {
		return nil, 0, nil
	}

	layers := []struct {
		scope   models.MemoryScope
		scopeID string
	}{
		{models.ScopeSession, sessionID},
		{models.ScopeProject, projectID},
		{models.ScopeGlobal, ""},
	}

	var facts []*models.MemoryEntry
	used := 0

	for _, layer := range layers {
		if layer.scope != models.ScopeGlobal && layer.scopeID == "" {
			continue
		}
		remaining := budget - used
		if remaining <= 0 {
			break
		}

		entries, err := m.backend.List(ctx, layer.scope, layer.scopeID, models.ChunkKindKnowledge, 50)
		if err != nil {
			return nil, 0, fmt.Errorf("list knowledge for scope %s: %w", layer.scope, err)
		}

		for _, e := range entries {
			cost := models.CharsToTokens(len(e.Content))
			if cost > remaining {
				continue
			}
			facts = append(facts, e)
			used += cost
			remaining -= cost
		}
	}

	return facts, used, nil
}
