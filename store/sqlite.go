package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/convoflow/convoflow/core"
)

// SQLiteStore is a durable core.Store backed by a single sqlite database.
// Message sequence assignment happens inside the INSERT statement
// (COALESCE(MAX(sequence),0)+1 within a transaction), so concurrent appends
// to the same conversation cannot race.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the
// schema. A plain file path or ":memory:" both work.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes through a single connection.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL,
	user_email TEXT NOT NULL DEFAULT '',
	user_name TEXT NOT NULL DEFAULT '',
	org_id TEXT NOT NULL DEFAULT '',
	is_platform_admin INTEGER NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS message (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversation(id),
	sequence INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	tool_calls TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	tool_name TEXT NOT NULL DEFAULT '',
	execution_id TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	model TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL,
	UNIQUE (conversation_id, sequence)
);
CREATE TABLE IF NOT EXISTS agent (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	tool_ids TEXT NOT NULL DEFAULT '[]',
	delegate_agent_ids TEXT NOT NULL DEFAULT '[]',
	knowledge_namespaces TEXT NOT NULL DEFAULT '[]',
	is_coding_mode INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS workflow (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parameters TEXT NOT NULL DEFAULT '',
	is_tool INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS usage_record (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	conversation_id TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	org_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_id, sequence);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateConversation implements core.Store.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	c := *conv
	if c.ID == "" {
		c.ID = core.NewID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, agent_id, user_id, user_email, user_name, org_id, is_platform_admin, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentID, c.UserID, c.UserEmail, c.UserName, c.OrgID, boolInt(c.IsPlatformAdmin),
		c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return &c, nil
}

// GetConversation implements core.Store.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, user_email, user_name, org_id, is_platform_admin, created_ts, updated_ts
		FROM conversation WHERE id = ?`, id)
	return scanConversation(row)
}

// SetConversationAgent implements core.Store.
func (s *SQLiteStore) SetConversationAgent(ctx context.Context, conversationID, agentID string) (*core.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation SET agent_id = ?, updated_ts = ? WHERE id = ?`,
		agentID, time.Now().UTC().Unix(), conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update conversation agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, core.ErrNotFound
	}
	return s.GetConversation(ctx, conversationID)
}

// AppendMessage implements core.Store. Sequence is computed inside the
// INSERT so the uniqueness constraint, not the caller, is the last line of
// defense against concurrent appenders.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg core.AppendMessage) (*core.Message, error) {
	if _, err := s.GetConversation(ctx, msg.ConversationID); err != nil {
		return nil, err
	}

	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(raw)
	}

	id := core.NewID()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message (id, conversation_id, sequence, role, content, tool_calls, tool_call_id, tool_name, execution_id, input_tokens, output_tokens, model, duration_ms, created_ts)
		VALUES (?, ?, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM message WHERE conversation_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, msg.ConversationID, msg.ConversationID, string(msg.Role), msg.Content, toolCalls,
		msg.ToolCallID, msg.ToolName, msg.ExecutionID, msg.InputTokens, msg.OutputTokens,
		msg.Model, msg.DurationMs, now.Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation SET updated_ts = ? WHERE id = ?`, now.Unix(), msg.ConversationID,
	); err != nil {
		return nil, fmt.Errorf("bump conversation: %w", err)
	}

	var sequence int
	if err := tx.QueryRowContext(ctx,
		`SELECT sequence FROM message WHERE id = ?`, id,
	).Scan(&sequence); err != nil {
		return nil, fmt.Errorf("read assigned sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	return &core.Message{
		ID:             id,
		ConversationID: msg.ConversationID,
		Sequence:       sequence,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCalls:      append([]core.ToolCall(nil), msg.ToolCalls...),
		ToolCallID:     msg.ToolCallID,
		ToolName:       msg.ToolName,
		ExecutionID:    msg.ExecutionID,
		InputTokens:    msg.InputTokens,
		OutputTokens:   msg.OutputTokens,
		Model:          msg.Model,
		DurationMs:     msg.DurationMs,
		CreatedAt:      now,
	}, nil
}

// ListMessages implements core.Store.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sequence, role, content, tool_calls, tool_call_id, tool_name, execution_id, input_tokens, output_tokens, model, duration_ms, created_ts
		FROM message WHERE conversation_id = ? ORDER BY sequence ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		var m core.Message
		var role, toolCalls string
		var createdTs int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sequence, &role, &m.Content, &toolCalls,
			&m.ToolCallID, &m.ToolName, &m.ExecutionID, &m.InputTokens, &m.OutputTokens,
			&m.Model, &m.DurationMs, &createdTs); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = core.Role(role)
		m.CreatedAt = time.Unix(createdTs, 0).UTC()
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountMessages implements core.Store.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string, role core.Role) (int, error) {
	query := `SELECT COUNT(1) FROM message WHERE conversation_id = ?`
	args := []any{conversationID}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, string(role))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CreateAgent implements core.Store.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *core.Agent) (*core.Agent, error) {
	a := *agent
	if a.ID == "" {
		a.ID = core.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent (id, name, description, system_prompt, tool_ids, delegate_agent_ids, knowledge_namespaces, is_coding_mode, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.SystemPrompt,
		jsonList(a.ToolIDs), jsonList(a.DelegateAgentIDs), jsonList(a.KnowledgeNamespaces),
		boolInt(a.IsCodingMode), boolInt(a.Active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return &a, nil
}

// GetAgent implements core.Store.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, system_prompt, tool_ids, delegate_agent_ids, knowledge_namespaces, is_coding_mode, active
		FROM agent WHERE id = ?`, id)
	return scanAgent(row)
}

// ListActiveAgents implements core.Store.
func (s *SQLiteStore) ListActiveAgents(ctx context.Context) ([]*core.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, system_prompt, tool_ids, delegate_agent_ids, knowledge_namespaces, is_coding_mode, active
		FROM agent WHERE active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*core.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateWorkflow implements core.Store.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *core.Workflow) (*core.Workflow, error) {
	w := *wf
	if w.ID == "" {
		w.ID = core.NewID()
	}
	params := ""
	if w.Parameters != nil {
		raw, err := json.Marshal(w.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal workflow parameters: %w", err)
		}
		params = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow (id, name, description, parameters, is_tool, active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, params, boolInt(w.IsTool), boolInt(w.Active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	return &w, nil
}

// ListWorkflows implements core.Store.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, ids []string) ([]*core.Workflow, error) {
	out := make([]*core.Workflow, 0, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, name, description, parameters, is_tool, active FROM workflow WHERE id = ?`, id)
		w, err := scanWorkflow(row)
		if err == core.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// FindWorkflowTool implements core.Store.
func (s *SQLiteStore) FindWorkflowTool(ctx context.Context, name string) (*core.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, parameters, is_tool, active
		FROM workflow WHERE active = 1 AND is_tool = 1 AND name = ? COLLATE NOCASE`, name)
	return scanWorkflow(row)
}

// RecordUsage implements core.Store.
func (s *SQLiteStore) RecordUsage(ctx context.Context, rec *core.UsageRecord) (*core.UsageRecord, error) {
	r := *rec
	if r.ID == "" {
		r.ID = core.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_record (id, provider, model, input_tokens, output_tokens, duration_ms, conversation_id, message_id, org_id, user_id, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Provider, r.Model, r.InputTokens, r.OutputTokens, r.DurationMs,
		r.ConversationID, r.MessageID, r.OrgID, r.UserID, r.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert usage record: %w", err)
	}
	return &r, nil
}

// ListUsage implements core.Store.
func (s *SQLiteStore) ListUsage(ctx context.Context, conversationID string) ([]*core.UsageRecord, error) {
	query := `
		SELECT id, provider, model, input_tokens, output_tokens, duration_ms, conversation_id, message_id, org_id, user_id, created_ts
		FROM usage_record`
	var args []any
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []*core.UsageRecord
	for rows.Next() {
		var r core.UsageRecord
		var createdTs int64
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.InputTokens, &r.OutputTokens,
			&r.DurationMs, &r.ConversationID, &r.MessageID, &r.OrgID, &r.UserID, &createdTs); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.CreatedAt = time.Unix(createdTs, 0).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var c core.Conversation
	var admin int
	var createdTs, updatedTs int64
	err := row.Scan(&c.ID, &c.AgentID, &c.UserID, &c.UserEmail, &c.UserName, &c.OrgID, &admin, &createdTs, &updatedTs)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.IsPlatformAdmin = admin != 0
	c.CreatedAt = time.Unix(createdTs, 0).UTC()
	c.UpdatedAt = time.Unix(updatedTs, 0).UTC()
	return &c, nil
}

func scanAgent(row rowScanner) (*core.Agent, error) {
	var a core.Agent
	var toolIDs, delegateIDs, namespaces string
	var coding, active int
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.SystemPrompt, &toolIDs, &delegateIDs, &namespaces, &coding, &active)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.IsCodingMode = coding != 0
	a.Active = active != 0
	for dst, src := range map[*[]string]string{
		&a.ToolIDs:             toolIDs,
		&a.DelegateAgentIDs:    delegateIDs,
		&a.KnowledgeNamespaces: namespaces,
	} {
		if src == "" || src == "[]" {
			continue
		}
		if err := json.Unmarshal([]byte(src), dst); err != nil {
			return nil, fmt.Errorf("unmarshal agent list: %w", err)
		}
	}
	return &a, nil
}

func scanWorkflow(row rowScanner) (*core.Workflow, error) {
	var w core.Workflow
	var params string
	var isTool, active int
	err := row.Scan(&w.ID, &w.Name, &w.Description, &params, &isTool, &active)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	w.IsTool = isTool != 0
	w.Active = active != 0
	if params != "" {
		if err := json.Unmarshal([]byte(params), &w.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal workflow parameters: %w", err)
		}
	}
	return &w, nil
}

func jsonList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
