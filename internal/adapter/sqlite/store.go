package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/domain/agent"
)

// Store implements database.Store on SQLite. The full agent record lives in
// the doc JSON column; scalar columns are denormalized copies kept for
// filtering and sorting only.
type Store struct {
	db  *sql.DB
	now func() time.Time // for testing
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, userID string, req agent.CreateRequest) (*agent.Agent, error) {
	now := s.now().UTC()
	a := &agent.Agent{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            req.Name,
		Avatar:          req.Avatar,
		RoleDescription: req.RoleDescription,
		Mode:            req.Mode,
		APIConfigID:     req.APIConfigID,
		Tools:           req.Tools,
		IsPrivate:       req.IsPrivate,
		ShareScope:      req.ShareScope,
		ShareLevel:      req.ShareLevel,
		AllowedUsers:    req.AllowedUsers,
		AllowedGroups:   req.AllowedGroups,
		CreatedAt:       now,
		UpdatedAt:       now,
		IsActive:        true,
		Version:         1,
	}
	a.Normalize()

	if err := s.insert(ctx, a); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, userID, agentID string) (*agent.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM agents WHERE id = ? AND user_id = ?`, agentID, userID)

	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get agent %s: %w", agentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	return a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, userID, agentID string, upd agent.Update) (*agent.Agent, error) {
	var updated *agent.Agent
	err := s.withAgent(ctx, userID, agentID, func(a *agent.Agent) error {
		upd.Apply(a, s.now())
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteAgent(ctx context.Context, userID, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE id = ? AND user_id = ?`, agentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete agent %s: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete agent %s: %w", agentID, err)
	}
	return n > 0, nil
}

func (s *Store) ListAgents(ctx context.Context, userID string, opts agent.ListOptions) ([]agent.Agent, error) {
	query := `SELECT doc FROM agents WHERE user_id = ?`
	args := []any{userID}

	if opts.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, opts.Mode)
	}
	if opts.ActiveOnly {
		query += ` AND is_active = 1`
	}

	col, order := opts.SortColumn()
	dir := "ASC"
	if order == agent.SortDesc {
		dir = "DESC"
	}
	// col comes from the sortable-field whitelist, never from raw input.
	query += fmt.Sprintf(` ORDER BY %s %s`, col, dir)

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(opts.Offset, 0))

	return s.queryAgents(ctx, query, args...)
}

// likeEscaper neutralizes LIKE metacharacters so search terms match
// literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchAgents(ctx context.Context, userID, query string) ([]agent.Agent, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	return s.queryAgents(ctx,
		`SELECT doc FROM agents
		 WHERE user_id = ?
		   AND (name LIKE ? ESCAPE '\' COLLATE NOCASE
		     OR role_description LIKE ? ESCAPE '\' COLLATE NOCASE
		     OR mode LIKE ? ESCAPE '\' COLLATE NOCASE)
		 ORDER BY updated_at DESC`,
		userID, pattern, pattern, pattern)
}

func (s *Store) ListPublishedAgents(ctx context.Context, userID string) ([]agent.Agent, error) {
	return s.queryAgents(ctx,
		`SELECT doc FROM agents WHERE user_id = ? AND is_published = 1 ORDER BY updated_at DESC`,
		userID)
}

// PutAgent writes a full record as-is, preserving its timestamps. The
// reconciler uses it to download remote records without re-stamping them.
func (s *Store) PutAgent(ctx context.Context, a *agent.Agent) error {
	if !a.HasIdentity() {
		return fmt.Errorf("put agent: %w: missing identity fields", domain.ErrValidation)
	}
	a.Normalize()
	if err := s.insert(ctx, a); err != nil {
		return fmt.Errorf("put agent %s: %w", a.ID, err)
	}
	return nil
}

// --- Todos ---

func (s *Store) AddTodo(ctx context.Context, userID, agentID, content string, priority int) (*agent.Todo, error) {
	if err := agent.ValidateTodo(content, agent.TodoPending); err != nil {
		return nil, err
	}

	var created agent.Todo
	err := s.withAgent(ctx, userID, agentID, func(a *agent.Agent) error {
		now := s.now().UTC()
		created = agent.Todo{
			ID:        uuid.NewString(),
			Content:   content,
			Status:    agent.TodoPending,
			Priority:  priority,
			CreatedAt: now,
			UpdatedAt: now,
		}
		a.Todos = append(a.Todos, created)
		a.Touch(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateTodo(ctx context.Context, userID, agentID, todoID string, content *string, status *agent.TodoStatus, priority *int) (*agent.Todo, error) {
	var updated agent.Todo
	err := s.withAgent(ctx, userID, agentID, func(a *agent.Agent) error {
		td := a.FindTodo(todoID)
		if td == nil {
			return fmt.Errorf("todo %s: %w", todoID, domain.ErrNotFound)
		}
		if content != nil {
			if err := agent.ValidateTodo(*content, td.Status); err != nil {
				return err
			}
			td.Content = *content
		}
		if status != nil {
			if err := agent.ValidateTodo(td.Content, *status); err != nil {
				return err
			}
			td.Status = *status
		}
		if priority != nil {
			td.Priority = *priority
		}
		now := s.now().UTC()
		td.UpdatedAt = now
		a.Touch(now)
		updated = *td
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteTodo(ctx context.Context, userID, agentID, todoID string) (bool, error) {
	existed := false
	err := s.withAgent(ctx, userID, agentID, func(a *agent.Agent) error {
		existed = a.RemoveTodo(todoID)
		if existed {
			a.Touch(s.now())
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// --- internals ---

// withAgent runs fn inside a read-modify-write transaction on one record.
// Writes for one agent id are serialized by this cycle; no cross-agent
// ordering is provided or required.
func (s *Store) withAgent(ctx context.Context, userID, agentID string, fn func(*agent.Agent) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT doc FROM agents WHERE id = ? AND user_id = ?`, agentID, userID)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
		}
		return fmt.Errorf("agent %s: %w", agentID, err)
	}

	if err := fn(a); err != nil {
		return err
	}

	if err := writeAgent(ctx, tx, a); err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}

	return tx.Commit()
}

func (s *Store) insert(ctx context.Context, a *agent.Agent) error {
	return writeAgent(ctx, s.db, a)
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeAgent(ctx context.Context, db execer, a *agent.Agent) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	var lastUsed any
	if a.LastUsedAt != nil {
		lastUsed = a.LastUsedAt.UnixMilli()
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO agents (id, user_id, name, mode, role_description, share_level,
		                     is_active, is_published, version, doc, created_at, updated_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   mode = excluded.mode,
		   role_description = excluded.role_description,
		   share_level = excluded.share_level,
		   is_active = excluded.is_active,
		   is_published = excluded.is_published,
		   version = excluded.version,
		   doc = excluded.doc,
		   updated_at = excluded.updated_at,
		   last_used_at = excluded.last_used_at`,
		a.ID, a.UserID, a.Name, a.Mode, a.RoleDescription, a.ShareLevel,
		boolToInt(a.IsActive), boolToInt(a.IsPublished), a.Version, string(doc),
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(), lastUsed)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*agent.Agent, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	var a agent.Agent
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	a.Normalize()
	return &a, nil
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
