package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements the append-only audit sink on PostgreSQL.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_events table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist.
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		action VARCHAR(100) NOT NULL,
		category VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_user_id BIGINT,
		tenant_id BIGINT,
		target_type VARCHAR(50),
		target_id VARCHAR(255),
		details JSONB,
		message TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events(target_type, target_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log appends an audit event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var detailsJSON []byte
	var err error

	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (id, timestamp, action, category, status, actor_user_id, tenant_id, target_type, target_id, details, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = l.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.Action,
		event.Category,
		event.Status,
		event.ActorUserID,
		event.TenantID,
		nullString(string(event.TargetType)),
		nullString(event.TargetID),
		nullBytes(detailsJSON),
		nullString(event.Message),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Search returns events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, action, category, status, actor_user_id, tenant_id, target_type, target_id, details, message
		FROM audit_events
		WHERE 1=1
	`

	var args []interface{}
	argN := 0
	arg := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if filter.StartTime != nil {
		query += " AND timestamp >= " + arg(*filter.StartTime)
	}
	if filter.EndTime != nil {
		query += " AND timestamp <= " + arg(*filter.EndTime)
	}
	if filter.ActorUserID != nil {
		query += " AND actor_user_id = " + arg(*filter.ActorUserID)
	}
	if filter.TenantID != nil {
		query += " AND tenant_id = " + arg(*filter.TenantID)
	}
	if filter.Category != "" {
		query += " AND category = " + arg(string(filter.Category))
	}
	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if filter.TargetType != "" {
		query += " AND target_type = " + arg(string(filter.TargetType))
	}
	if filter.TargetID != "" {
		query += " AND target_id = " + arg(filter.TargetID)
	}
	if len(filter.Actions) > 0 {
		query += " AND action IN ("
		for i, a := range filter.Actions {
			if i > 0 {
				query += ", "
			}
			query += arg(string(a))
		}
		query += ")"
	}

	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var event Event
	var actorUserID, tenantID sql.NullInt64
	var targetType, targetID, message sql.NullString
	var detailsJSON []byte

	err := rows.Scan(
		&event.ID,
		&event.Timestamp,
		&event.Action,
		&event.Category,
		&event.Status,
		&actorUserID,
		&tenantID,
		&targetType,
		&targetID,
		&detailsJSON,
		&message,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	if actorUserID.Valid {
		id := actorUserID.Int64
		event.ActorUserID = &id
	}
	if tenantID.Valid {
		id := tenantID.Int64
		event.TenantID = &id
	}
	event.TargetType = TargetType(targetType.String)
	event.TargetID = targetID.String
	event.Message = message.String

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}

	return &event, nil
}

// CleanupBefore deletes events older than cutoff and returns the count.
// Retention is a deployment decision; the core only provides the sweep.
func (l *DBLogger) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit events: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the caller owns the database handle.
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
