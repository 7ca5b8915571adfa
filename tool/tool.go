// Package tool resolves the tool surface an agent exposes to the model:
// workflow-backed tools registered in the store, the built-in knowledge
// search tool and per-delegate hand-off tools. Definitions carry a name,
// description and JSON-schema parameters in the shape LLM function calling
// expects.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/internal/util"
)

const (
	// SearchKnowledgeToolName is the reserved name of the built-in
	// knowledge search tool.
	SearchKnowledgeToolName = "search_knowledge"

	// DelegateToolPrefix prefixes the per-delegate hand-off tools, e.g.
	// "delegate_to_research_assistant".
	DelegateToolPrefix = "delegate_to_"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Registry resolves tool identifiers to callable definitions.
type Registry interface {
	Definitions(ctx context.Context, ids []string) ([]core.ToolDefinition, error)
}

// StoreRegistry resolves workflow-backed tools through a core.Store.
type StoreRegistry struct {
	store core.Store
}

// NewStoreRegistry creates a Registry over the given store.
func NewStoreRegistry(store core.Store) *StoreRegistry {
	return &StoreRegistry{store: store}
}

// Definitions resolves workflow ids to tool definitions. Unknown, inactive
// and non-tool workflows are skipped.
func (r *StoreRegistry) Definitions(ctx context.Context, ids []string) ([]core.ToolDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	workflows, err := r.store.ListWorkflows(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defs := make([]core.ToolDefinition, 0, len(workflows))
	for _, wf := range workflows {
		if !wf.Active || !wf.IsTool {
			continue
		}
		params := wf.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, core.ToolDefinition{
			Name:        wf.Name,
			Description: wf.Description,
			Parameters:  params,
		})
	}
	return defs, nil
}

// StaticRegistry serves a fixed set of definitions keyed by id.
type StaticRegistry struct {
	defs map[string]core.ToolDefinition
}

// NewStaticRegistry creates a Registry from a fixed id-to-definition map.
func NewStaticRegistry(defs map[string]core.ToolDefinition) *StaticRegistry {
	return &StaticRegistry{defs: defs}
}

// Definitions returns the definitions for the known ids, skipping unknown ones.
func (r *StaticRegistry) Definitions(_ context.Context, ids []string) ([]core.ToolDefinition, error) {
	out := make([]core.ToolDefinition, 0, len(ids))
	for _, id := range ids {
		if def, ok := r.defs[id]; ok {
			out = append(out, def)
		}
	}
	return out, nil
}

// Slugify turns an agent name into a tool-name-safe slug: lowercase, with
// runs of non-alphanumeric characters collapsed to single underscores.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// DelegateSlug extracts the target-agent slug from a delegation tool name.
// Returns false when name does not carry the delegation prefix.
func DelegateSlug(name string) (string, bool) {
	if !strings.HasPrefix(name, DelegateToolPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, DelegateToolPrefix), true
}
