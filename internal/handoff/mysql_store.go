package handoff

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将交接记录落到 MySQL。accept 的排他性由
// UPDATE ... WHERE status IN ('pending') 的比较并交换保证。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for handoffs")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for handoffs")
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
CREATE TABLE IF NOT EXISTS handoffs (
    id            VARCHAR(64) NOT NULL,
    from_agent_id VARCHAR(64) NULL,
    to_agent_id   VARCHAR(64) NULL,
    workflow_id   VARCHAR(64) NULL,
    execution_id  VARCHAR(64) NULL,
    context       JSON        NOT NULL,
    reason        TEXT        NULL,
    status        VARCHAR(32) NOT NULL DEFAULT 'pending',
    accepted_at   BIGINT      NULL,
    completed_at  BIGINT      NULL,
    created_at    BIGINT      NOT NULL,
    updated_at    BIGINT      NOT NULL,
    PRIMARY KEY (id),
    KEY idx_handoffs_to_agent (to_agent_id, status),
    KEY idx_handoffs_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init handoffs schema")
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, h *Handoff) error {
	contextBody, err := json.Marshal(h.Context)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode handoff context")
	}

	const query = `
INSERT INTO handoffs (id, from_agent_id, to_agent_id, workflow_id, execution_id,
    context, reason, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		h.ID, nullable(h.FromAgentID), nullable(h.ToAgentID), nullable(h.WorkflowID), nullable(h.ExecutionID),
		string(contextBody), nullable(h.Reason), string(h.Status), h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "insert handoff")
	}
	return nil
}

const handoffColumns = `id, from_agent_id, to_agent_id, workflow_id, execution_id,
    context, reason, status, accepted_at, completed_at, created_at, updated_at`

func (s *MySQLStore) Get(ctx context.Context, id string) (*Handoff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE id = ?`, id)
	return scanHandoff(row)
}

func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]*Handoff, error) {
	query := `SELECT ` + handoffColumns + ` FROM handoffs WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.ToAgentID != "" {
		query += ` AND to_agent_id = ?`
		args = append(args, filter.ToAgentID)
	}
	if filter.FromAgentID != "" {
		query += ` AND from_agent_id = ?`
		args = append(args, filter.FromAgentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
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
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list handoffs")
	}
	defer rows.Close()

	var handoffs []*Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		handoffs = append(handoffs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate handoffs")
	}
	return handoffs, nil
}

func (s *MySQLStore) Transition(ctx context.Context, id string, sources []Status, target Status, patch StampPatch) (*Handoff, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sources)), ", ")

	query := `UPDATE handoffs SET status = ?, updated_at = ?`
	args := []any{string(target), time.Now().Unix()}
	if patch.AcceptedAt != 0 {
		query += `, accepted_at = ?`
		args = append(args, patch.AcceptedAt)
	}
	if patch.CompletedAt != 0 {
		query += `, completed_at = ?`
		args = append(args, patch.CompletedAt)
	}
	query += ` WHERE id = ? AND status IN (` + placeholders + `)`
	args = append(args, id)
	for _, source := range sources {
		args = append(args, string(source))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "transition handoff")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "handoff rows affected")
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
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "handoff status changed concurrently",
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

func scanHandoff(row rowScanner) (*Handoff, error) {
	var (
		h           Handoff
		fromAgent   sql.NullString
		toAgent     sql.NullString
		workflowID  sql.NullString
		executionID sql.NullString
		contextBody string
		reason      sql.NullString
		status      string
		acceptedAt  sql.NullInt64
		completedAt sql.NullInt64
	)
	err := row.Scan(&h.ID, &fromAgent, &toAgent, &workflowID, &executionID,
		&contextBody, &reason, &status, &acceptedAt, &completedAt, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHandoffNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan handoff")
	}
	h.FromAgentID = fromAgent.String
	h.ToAgentID = toAgent.String
	h.WorkflowID = workflowID.String
	h.ExecutionID = executionID.String
	h.Reason = reason.String
	h.Status = Status(status)
	h.AcceptedAt = acceptedAt.Int64
	h.CompletedAt = completedAt.Int64
	if contextBody != "" {
		if err := json.Unmarshal([]byte(contextBody), &h.Context); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode handoff context")
		}
	}
	return &h, nil
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
