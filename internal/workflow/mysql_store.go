package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AgentPlane/internal/errors"
)

// MySQLStore 将工作流定义落到 MySQL。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for workflows")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for workflows")
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
CREATE TABLE IF NOT EXISTS workflows (
    id                   VARCHAR(64)  NOT NULL,
    name                 VARCHAR(190) NOT NULL,
    description          TEXT         NULL,
    version              INT          NOT NULL,
    definition           MEDIUMTEXT   NOT NULL,
    designed_by_agent_id VARCHAR(64)  NULL,
    designed_with_model  VARCHAR(128) NULL,
    executable_by_model  VARCHAR(128) NULL,
    metadata             JSON         NULL,
    is_active            TINYINT(1)   NOT NULL DEFAULT 1,
    created_at           BIGINT       NOT NULL,
    updated_at           BIGINT       NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uk_workflows_name_version (name, version),
    KEY idx_workflows_name (name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init workflows schema")
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, def *Definition) error {
	var metadata sql.NullString
	if def.Metadata != nil {
		data, err := json.Marshal(def.Metadata)
		if err != nil {
			return xerrors.Wrap(err, xerrors.CodeInvalidArgument, "encode workflow metadata")
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	const query = `
INSERT INTO workflows (id, name, description, version, definition,
    designed_by_agent_id, designed_with_model, executable_by_model, metadata,
    is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.Version, def.Definition,
		nullable(def.DesignedByAgentID), nullable(def.DesignedWithModel), nullable(def.ExecutableByModel), metadata,
		def.IsActive, def.CreatedAt, def.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrWorkflowConflict
		}
		return xerrors.Wrap(err, xerrors.CodeStorageFailure, "insert workflow")
	}
	return nil
}

const workflowColumns = `id, name, description, version, definition,
    designed_by_agent_id, designed_with_model, executable_by_model, metadata,
    is_active, created_at, updated_at`

func (s *MySQLStore) Get(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row)
}

func (s *MySQLStore) Latest(ctx context.Context, name string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ? ORDER BY version DESC LIMIT 1`, name)
	return scanWorkflow(row)
}

func (s *MySQLStore) GetVersion(ctx context.Context, name string, version int) (*Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ? AND version = ?`, name, version)
	return scanWorkflow(row)
}

func (s *MySQLStore) NextVersion(ctx context.Context, name string) (int, error) {
	var highest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM workflows WHERE name = ?`, name).Scan(&highest)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeStorageFailure, "query max workflow version")
	}
	return int(highest.Int64) + 1, nil
}

func (s *MySQLStore) List(ctx context.Context, filter ListFilter) ([]*Definition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1=1`
	args := make([]any, 0, 1)
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name ASC, version DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "list workflows")
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate workflows")
	}
	return defs, nil
}

func (s *MySQLStore) SetActive(ctx context.Context, id string, active bool) (*Definition, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().Unix(), id)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "update workflow active flag")
	}
	return s.Get(ctx, id)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Definition, error) {
	var (
		def         Definition
		description sql.NullString
		designedBy  sql.NullString
		designModel sql.NullString
		execModel   sql.NullString
		metadata    sql.NullString
	)
	err := row.Scan(&def.ID, &def.Name, &description, &def.Version, &def.Definition,
		&designedBy, &designModel, &execModel, &metadata,
		&def.IsActive, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan workflow")
	}
	def.Description = description.String
	def.DesignedByAgentID = designedBy.String
	def.DesignedWithModel = designModel.String
	def.ExecutableByModel = execModel.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &def.Metadata); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode workflow metadata")
		}
	}
	return &def, nil
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
