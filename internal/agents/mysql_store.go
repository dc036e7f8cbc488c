package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将智能体注册表落到 MySQL。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for agents")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for agents")
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
CREATE TABLE IF NOT EXISTS agents (
    id           VARCHAR(64)  NOT NULL,
    name         VARCHAR(190) NOT NULL,
    framework    VARCHAR(128) NOT NULL DEFAULT '',
    description  TEXT         NULL,
    capabilities JSON         NULL,
    config       JSON         NULL,
    status       VARCHAR(32)  NOT NULL DEFAULT 'active',
    created_at   BIGINT       NOT NULL,
    updated_at   BIGINT       NOT NULL,
    last_seen    BIGINT       NOT NULL DEFAULT 0,
    PRIMARY KEY (id),
    UNIQUE KEY uk_agents_name (name),
    KEY idx_agents_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init agents schema")
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, agent *Agent) error {
	capabilities, err := marshalValues(agent.Capabilities)
	if err != nil {
		return err
	}
	config, err := marshalValues(agent.Config)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO agents (id, name, framework, description, capabilities, config, status, created_at, updated_at, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.Framework, agent.Description,
		capabilities, config, string(agent.Status),
		agent.CreatedAt, agent.UpdatedAt, agent.LastSeen,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAgentConflict
		}
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "insert agent")
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, id string) (*Agent, error) {
	return s.queryOne(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
}

func (s *MySQLStore) GetByName(ctx context.Context, name string) (*Agent, error) {
	return s.queryOne(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)
}

func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	args := make([]any, 0, 2)
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Framework != "" {
		query += ` AND framework = ?`
		args = append(args, filter.Framework)
	}
	query += ` ORDER BY created_at DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list agents")
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate agents")
	}
	return agents, nil
}

func (s *MySQLStore) Touch(ctx context.Context, name string, status Status, seenAt int64) (*Agent, error) {
	query := `UPDATE agents SET last_seen = ?, updated_at = ?`
	args := []any{seenAt, time.Now().Unix()}
	if status != "" {
		query += `, status = ?`
		args = append(args, string(status))
	}
	query += ` WHERE name = ?`
	args = append(args, name)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "touch agent")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "touch agent rows affected")
	}
	if affected == 0 {
		// UPDATE 命中同值行时 RowsAffected 也可能为 0，需要回查确认。
		if _, err := s.GetByName(ctx, name); err != nil {
			return nil, err
		}
	}
	return s.GetByName(ctx, name)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

const agentColumns = `id, name, framework, description, capabilities, config, status, created_at, updated_at, last_seen`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		agent        Agent
		description  sql.NullString
		capabilities sql.NullString
		config       sql.NullString
		status       string
	)
	err := row.Scan(
		&agent.ID, &agent.Name, &agent.Framework, &description,
		&capabilities, &config, &status,
		&agent.CreatedAt, &agent.UpdatedAt, &agent.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan agent")
	}
	agent.Description = description.String
	agent.Status = Status(status)
	if agent.Capabilities, err = unmarshalValues(capabilities); err != nil {
		return nil, err
	}
	if agent.Config, err = unmarshalValues(config); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *MySQLStore) queryOne(ctx context.Context, query string, arg any) (*Agent, error) {
	return scanAgent(s.db.QueryRowContext(ctx, query, arg))
}

func marshalValues(values map[string]any) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode agent json field")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalValues(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode agent json field")
	}
	return values, nil
}
