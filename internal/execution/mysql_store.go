package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将执行记录落到 MySQL。状态转移通过
// UPDATE ... WHERE status IN (...) 的比较并交换实现，并发下只有
// 一个调用方能赢得转移。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for executions")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for executions")
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
CREATE TABLE IF NOT EXISTS workflow_executions (
    id                  VARCHAR(64)  NOT NULL,
    workflow_id         VARCHAR(64)  NOT NULL,
    agent_id            VARCHAR(64)  NULL,
    executed_with_model VARCHAR(128) NULL,
    status              VARCHAR(32)  NOT NULL DEFAULT 'pending',
    input_data          JSON         NULL,
    output_data         JSON         NULL,
    error_message       TEXT         NULL,
    cost_estimate       DOUBLE       NOT NULL DEFAULT 0,
    started_at          BIGINT       NOT NULL,
    completed_at        BIGINT       NULL,
    duration_seconds    BIGINT       NULL,
    created_at          BIGINT       NOT NULL,
    updated_at          BIGINT       NOT NULL,
    PRIMARY KEY (id),
    KEY idx_executions_workflow (workflow_id),
    KEY idx_executions_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init executions schema")
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, exec *Execution) error {
	input, err := marshalValues(exec.InputData)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO workflow_executions (id, workflow_id, agent_id, executed_with_model, status,
    input_data, cost_estimate, started_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		exec.ID, exec.WorkflowID, nullable(exec.AgentID), nullable(exec.ExecutedWithModel),
		string(exec.Status), input, exec.CostEstimate, exec.StartedAt, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "insert execution")
	}
	return nil
}

const executionColumns = `id, workflow_id, agent_id, executed_with_model, status,
    input_data, output_data, error_message, cost_estimate,
    started_at, completed_at, duration_seconds, created_at, updated_at`

func (s *MySQLStore) Get(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = ?`, id)
	return scanExecution(row)
}

func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.WorkflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, filter.WorkflowID)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
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
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list executions")
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate executions")
	}
	return execs, nil
}

func (s *MySQLStore) Transition(ctx context.Context, id string, sources []Status, target Status, patch TerminalPatch) (*Execution, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sources)), ", ")
	now := time.Now().Unix()

	var (
		query string
		args  []any
	)
	if Lifecycle.Terminal(target) {
		output, err := marshalValues(patch.OutputData)
		if err != nil {
			return nil, err
		}
		// duration 由数据库按已落盘的 started_at 计算。
		query = `UPDATE workflow_executions
SET status = ?, output_data = ?, error_message = ?, cost_estimate = ?,
    completed_at = ?, duration_seconds = GREATEST(? - started_at, 0), updated_at = ?
WHERE id = ? AND status IN (` + placeholders + `)`
		args = []any{string(target), output, nullable(patch.ErrorMessage), patch.CostEstimate,
			patch.CompletedAt, patch.CompletedAt, now, id}
	} else {
		query = `UPDATE workflow_executions SET status = ?, updated_at = ? WHERE id = ? AND status IN (` + placeholders + `)`
		args = []any{string(target), now, id}
	}
	for _, source := range sources {
		args = append(args, string(source))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "transition execution")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "execution rows affected")
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
		return nil, xerrors.New(xerrors.CodeInvalidTransition, "execution status changed concurrently",
			xerrors.WithMetadata(map[string]any{"from": string(current.Status), "to": string(target)}))
	}
	return s.Get(ctx, id)
}

func (s *MySQLStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[Status]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM workflow_executions GROUP BY status`)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "query execution stats")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan execution stats")
		}
		stats.ByStatus[Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate execution stats")
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(duration_seconds) FROM workflow_executions WHERE status = 'completed'`).Scan(&avg)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "query avg duration")
	}
	stats.AvgDurationSeconds = avg.Float64
	return stats, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		exec      Execution
		agentID   sql.NullString
		model     sql.NullString
		status    string
		input     sql.NullString
		output    sql.NullString
		errMsg    sql.NullString
		completed sql.NullInt64
		duration  sql.NullInt64
	)
	err := row.Scan(&exec.ID, &exec.WorkflowID, &agentID, &model, &status,
		&input, &output, &errMsg, &exec.CostEstimate,
		&exec.StartedAt, &completed, &duration, &exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan execution")
	}
	exec.AgentID = agentID.String
	exec.ExecutedWithModel = model.String
	exec.Status = Status(status)
	exec.ErrorMessage = errMsg.String
	exec.CompletedAt = completed.Int64
	exec.DurationSeconds = duration.Int64
	if exec.InputData, err = unmarshalValues(input); err != nil {
		return nil, err
	}
	if exec.OutputData, err = unmarshalValues(output); err != nil {
		return nil, err
	}
	return &exec, nil
}

func marshalValues(values map[string]any) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode execution json field")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalValues(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode execution json field")
	}
	return values, nil
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
