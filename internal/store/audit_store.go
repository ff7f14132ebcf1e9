package store

import (
	"context"

	"moneytransfer/internal/models"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID *int64, action, entityType, entityID, data string) error {
	if data == "" {
		data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)
	`, actorID, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
