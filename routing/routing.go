// Package routing selects the agent a conversation should run under. Two
// mechanisms exist: explicit @mention directives in the user text, and an
// LLM-driven classification of the first message of an agentless
// conversation.
package routing

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
)

// Router resolves agents from user text. Both resolution methods are best
// effort: a nil agent with a nil error means "no match, proceed unchanged".
type Router interface {
	// ParseMention resolves an @mention token in text to an active agent.
	ParseMention(ctx context.Context, text string) (*core.Agent, error)

	// StripMention removes the first @mention token from text.
	StripMention(text string) string

	// RouteMessage asks a model to pick the best active agent for text.
	RouteMessage(ctx context.Context, text string, isPlatformAdmin bool) (*core.Agent, error)
}

var mentionRe = regexp.MustCompile(`@([\w-]+)`)

// ModelRouter resolves mentions against the store's active agents and uses a
// model completion for classification-based routing.
type ModelRouter struct {
	store  core.Store
	client model.Client
	logger logging.Logger
}

// NewModelRouter creates a router over the given store and model client.
func NewModelRouter(store core.Store, client model.Client, optFns ...func(o *ModelRouterOptions)) *ModelRouter {
	opts := ModelRouterOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelRouter{store: store, client: client, logger: opts.Logger}
}

// ModelRouterOptions configures a ModelRouter.
type ModelRouterOptions struct {
	Logger logging.Logger
}

// normalizeName lowercases an agent name and joins words with underscores so
// "Research Assistant" matches the mention token "research_assistant".
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// ParseMention matches the first @token in text against active agent names,
// case-insensitively, with spaces in names treated as underscores.
func (r *ModelRouter) ParseMention(ctx context.Context, text string) (*core.Agent, error) {
	m := mentionRe.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	token := strings.ToLower(m[1])

	agents, err := r.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	for _, a := range agents {
		if normalizeName(a.Name) == token {
			return a, nil
		}
	}
	return nil, nil
}

// StripMention removes the first @mention token and tidies whitespace.
// Later mentions stay in the text; only the leading directive is consumed.
func (r *ModelRouter) StripMention(text string) string {
	stripped := text
	if loc := mentionRe.FindStringIndex(text); loc != nil {
		stripped = text[:loc[0]] + text[loc[1]:]
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// RouteMessage asks the model to pick one of the active agents for the given
// message. Returns nil when no agent fits or the model answer is unusable.
func (r *ModelRouter) RouteMessage(ctx context.Context, text string, _ bool) (*core.Agent, error) {
	agents, err := r.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("You route user requests to the best-suited agent.\n")
	b.WriteString("Available agents:\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	b.WriteString("Reply with exactly one agent name from the list, or \"none\" if no agent fits.")

	answer, err := r.client.Complete(ctx, []model.Message{
		{Role: core.RoleSystem, Content: b.String()},
		{Role: core.RoleUser, Content: text},
	})
	if err != nil {
		return nil, fmt.Errorf("route message: %w", err)
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" || answer == "none" {
		return nil, nil
	}
	for _, a := range agents {
		if strings.Contains(answer, strings.ToLower(a.Name)) {
			r.logger.Debug("routed message to agent", "agent", a.Name)
			return a, nil
		}
	}
	return nil, nil
}
