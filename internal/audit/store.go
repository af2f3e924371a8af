package audit

import (
	"context"
	"fmt"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// PGStore persists audit log entries in Postgres.
type PGStore struct {
	DB db.DBTX
}

// InsertAuditLog appends one audit entry.
func (s *PGStore) InsertAuditLog(ctx context.Context, entry Entry) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_logs (
			actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ActorKind, entry.ActorUserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Method, entry.Path, entry.Route, entry.Status, entry.IP, entry.UserAgent,
		entry.RequestID, entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns entries newest first.
func (s *PGStore) ListAuditLogs(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, actor_kind, actor_user_id, action, resource_type, resource_id,
		       method, path, route, status, ip, user_agent, request_id, metadata, criado_em
		FROM audit_logs
		ORDER BY criado_em DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent,
			&e.RequestID, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
