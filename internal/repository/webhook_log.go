package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/domain"
)

type webhookLogRepo struct{}

// NewWebhookLogRepository returns a pgx-backed WebhookLogRepository.
func NewWebhookLogRepository() WebhookLogRepository {
	return &webhookLogRepo{}
}

func (r *webhookLogRepo) Insert(ctx context.Context, db DBTX, l *domain.WebhookLog) (bool, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	tag, err := db.Exec(ctx, `
		INSERT INTO webhook_logs (id, gateway, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (gateway, event_id) DO NOTHING`,
		l.ID, string(l.Gateway), l.EventID, l.EventType, l.Payload)
	if err != nil {
		return false, fmt.Errorf("insert webhook log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *webhookLogRepo) MarkProcessed(ctx context.Context, db DBTX, gateway domain.GatewayKind, eventID string) error {
	_, err := db.Exec(ctx, `
		UPDATE webhook_logs SET processed = true, processed_at = now()
		WHERE gateway = $1 AND event_id = $2`, string(gateway), eventID)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}
