package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	xerrors "AgentPlane/internal/errors"
)

// MySQLRecorder 把审计事件持久化到 audit_log 表，支持回查。
type MySQLRecorder struct {
	db *sql.DB
}

// NewMySQLRecorder 建立连接并确保表结构就绪。
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "open mysql for audit")
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, xerrors.CodeInitializationFailure, "ping mysql for audit")
	}

	recorder := &MySQLRecorder{db: db}
	if err := recorder.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return recorder, nil
}

func (r *MySQLRecorder) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_log (
    id            VARCHAR(64)  NOT NULL,
    actor         VARCHAR(190) NOT NULL,
    action        VARCHAR(128) NOT NULL,
    resource_type VARCHAR(64)  NOT NULL,
    resource_id   VARCHAR(64)  NOT NULL,
    details       JSON         NULL,
    occurred_at   BIGINT       NOT NULL,
    PRIMARY KEY (id),
    KEY idx_audit_resource (resource_type, resource_id),
    KEY idx_audit_occurred (occurred_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(err, xerrors.CodeInitializationFailure, "init audit schema")
	}
	return nil
}

func (r *MySQLRecorder) Record(ctx context.Context, event Event) error {
	var details sql.NullString
	if event.Details != nil {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return xerrors.Wrap(err, xerrors.CodeAuditFailure, "encode audit details")
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	const query = `
INSERT INTO audit_log (id, actor, action, resource_type, resource_id, details, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Actor, event.Action,
		event.ResourceType, event.ResourceID, details, event.OccurredAt,
	)
	if err != nil {
		return xerrors.Wrap(err, xerrors.CodeAuditFailure, "insert audit event")
	}
	return nil
}

// Query 按过滤条件回查审计事件，按发生时间倒序。
func (r *MySQLRecorder) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `SELECT id, actor, action, resource_type, resource_id, details, occurred_at FROM audit_log WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.ResourceType != "" {
		query += ` AND resource_type = ?`
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, filter.ResourceID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}
	query += ` ORDER BY occurred_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "query audit log")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			details sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Actor, &event.Action,
			&event.ResourceType, &event.ResourceID, &details, &event.OccurredAt); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "scan audit event")
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "decode audit details")
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeStorageFailure, "iterate audit log")
	}
	return events, nil
}

func (r *MySQLRecorder) Close() error {
	return r.db.Close()
}
