package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将组件状态落到 MySQL。写入是
// INSERT ... ON DUPLICATE KEY UPDATE 的覆盖写，读取带过期过滤。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for state")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for state")
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
CREATE TABLE IF NOT EXISTS component_state (
    id             VARCHAR(64)  NOT NULL,
    component_name VARCHAR(190) NOT NULL,
    state_key      VARCHAR(190) NOT NULL,
    state_value    JSON         NOT NULL,
    agent_id       VARCHAR(64)  NULL,
    created_at     BIGINT       NOT NULL,
    updated_at     BIGINT       NOT NULL,
    expires_at     BIGINT       NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uk_state_component_key (component_name, state_key),
    KEY idx_state_expires (expires_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init component_state schema")
	}
	return nil
}

func (s *MySQLStore) Put(ctx context.Context, entry *Entry) error {
	value, err := json.Marshal(entry.StateValue)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode state value")
	}
	var expires sql.NullInt64
	if entry.ExpiresAt != 0 {
		expires = sql.NullInt64{Int64: entry.ExpiresAt, Valid: true}
	}
	var agentID sql.NullString
	if entry.AgentID != "" {
		agentID = sql.NullString{String: entry.AgentID, Valid: true}
	}

	const query = `
INSERT INTO component_state (id, component_name, state_key, state_value, agent_id, created_at, updated_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    state_value = VALUES(state_value),
    agent_id    = VALUES(agent_id),
    updated_at  = VALUES(updated_at),
    expires_at  = VALUES(expires_at)`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.ComponentName, entry.StateKey, string(value), agentID,
		entry.CreatedAt, entry.UpdatedAt, expires,
	)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "upsert state entry")
	}
	return nil
}

const stateColumns = `id, component_name, state_key, state_value, agent_id, created_at, updated_at, expires_at`

func (s *MySQLStore) Get(ctx context.Context, component, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM component_state
WHERE component_name = ? AND state_key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		component, key, time.Now().Unix())
	return scanEntry(row)
}

func (s *MySQLStore) GetAll(ctx context.Context, component string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM component_state
WHERE component_name = ? AND (expires_at IS NULL OR expires_at > ?)
ORDER BY state_key ASC`,
		component, time.Now().Unix())
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list state entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate state entries")
	}
	return entries, nil
}

func (s *MySQLStore) Delete(ctx context.Context, component, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM component_state WHERE component_name = ? AND state_key = ?`, component, key)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "delete state entry")
	}
	return nil
}

// PurgeExpired 删除已过期的条目，返回删除数量。由运维任务周期
// 调用，不影响读路径的正确性。
func (s *MySQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM component_state WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeStorageFailure, "purge expired state")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeStorageFailure, "purge rows affected")
	}
	return affected, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry   Entry
		value   string
		agentID sql.NullString
		expires sql.NullInt64
	)
	err := row.Scan(&entry.ID, &entry.ComponentName, &entry.StateKey, &value,
		&agentID, &entry.CreatedAt, &entry.UpdatedAt, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan state entry")
	}
	entry.AgentID = agentID.String
	entry.ExpiresAt = expires.Int64
	if err := json.Unmarshal([]byte(value), &entry.StateValue); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode state value")
	}
	return &entry, nil
}
