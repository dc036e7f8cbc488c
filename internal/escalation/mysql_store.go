package escalation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将升级记录落到 MySQL。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for escalations")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for escalations")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS escalations (
    id           VARCHAR(64)  NOT NULL,
    agent_id     VARCHAR(64)  NULL,
    execution_id VARCHAR(64)  NULL,
    handoff_id   VARCHAR(64)  NULL,
    workflow_id  VARCHAR(64)  NULL,
    reason       TEXT         NOT NULL,
    priority     VARCHAR(16)  NOT NULL DEFAULT 'medium',
    context      JSON         NULL,
    assigned_to  VARCHAR(190) NULL,
    status       VARCHAR(32)  NOT NULL DEFAULT 'open',
    resolution   TEXT         NULL,
    resolved_by  VARCHAR(190) NULL,
    resolved_at  BIGINT       NULL,
    created_at   BIGINT       NOT NULL,
    updated_at   BIGINT       NOT NULL,
    PRIMARY KEY (id),
    KEY idx_escalations_status (status),
    KEY idx_escalations_priority (priority)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init escalations schema")
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, e *Escalation) error {
	var contextBody sql.NullString
	if e.Context != nil {
		data, err := json.Marshal(e.Context)
		if err != nil {
			return xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode escalation context")
		}
		contextBody = sql.NullString{String: string(data), Valid: true}
	}

	const query = `
INSERT INTO escalations (id, agent_id, execution_id, handoff_id, workflow_id,
    reason, priority, context, assigned_to, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, nullable(e.AgentID), nullable(e.ExecutionID), nullable(e.HandoffID), nullable(e.WorkflowID),
		e.Reason, string(e.Priority), contextBody, nullable(e.AssignedTo), string(e.Status),
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "insert escalation")
	}
	return nil
}

const escalationColumns = `id, agent_id, execution_id, handoff_id, workflow_id,
    reason, priority, context, assigned_to, status, resolution, resolved_by, resolved_at,
    created_at, updated_at`

func (s *MySQLStore) Get(ctx context.Context, id string) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id)
	return scanEscalation(row)
}

func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]*Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE 1=1`
	args := make([]any, 0, 5)
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.AssignedTo != "" {
		query += ` AND assigned_to = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list escalations")
	}
	defer rows.Close()

	var escalations []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate escalations")
	}
	return escalations, nil
}

func (s *MySQLStore) Transition(ctx context.Context, id string, sources []Status, target Status, patch ResolvePatch) (*Escalation, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sources)), ", ")

	query := `UPDATE escalations SET status = ?, updated_at = ?`
	args := []any{string(target), time.Now().Unix()}
	if Lifecycle.Terminal(target) {
		query += `, resolution = ?, resolved_by = ?, resolved_at = ?`
		args = append(args, patch.Resolution, nullable(patch.ResolvedBy), patch.ResolvedAt)
	}
	query += ` WHERE id = ? AND status IN (` + placeholders + `)`
	args = append(args, id)
	for _, source := range sources {
		args = append(args, string(source))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "transition escalation")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "escalation rows affected")
	}
	if affected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		// 重读到的状态若仍不可达，给出与内存实现一致的精确错误。
		if err := Lifecycle.Guard(current.Status, target); err != nil {
			return nil, err
		}
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "escalation status changed concurrently",
			xerrors.WithMetadata(map[string]any{"from": string(current.Status), "to": string(target)}))
	}
	return s.Get(ctx, id)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	var (
		e           Escalation
		agentID     sql.NullString
		executionID sql.NullString
		handoffID   sql.NullString
		workflowID  sql.NullString
		priority    string
		contextBody sql.NullString
		assignedTo  sql.NullString
		status      string
		resolution  sql.NullString
		resolvedBy  sql.NullString
		resolvedAt  sql.NullInt64
	)
	err := row.Scan(&e.ID, &agentID, &executionID, &handoffID, &workflowID,
		&e.Reason, &priority, &contextBody, &assignedTo, &status,
		&resolution, &resolvedBy, &resolvedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscalationNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan escalation")
	}
	e.AgentID = agentID.String
	e.ExecutionID = executionID.String
	e.HandoffID = handoffID.String
	e.WorkflowID = workflowID.String
	e.Priority = Priority(priority)
	e.AssignedTo = assignedTo.String
	e.Status = Status(status)
	e.Resolution = resolution.String
	e.ResolvedBy = resolvedBy.String
	e.ResolvedAt = resolvedAt.Int64
	if contextBody.Valid && contextBody.String != "" {
		if err := json.Unmarshal([]byte(contextBody.String), &e.Context); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode escalation context")
		}
	}
	return &e, nil
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
