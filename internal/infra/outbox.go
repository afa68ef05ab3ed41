package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	outboxPublished     = metrics.GetOrCreateCounter(`outbox_relay_total{result="published"}`)
	outboxPublishFailed = metrics.GetOrCreateCounter(`outbox_relay_total{result="publish_failed"}`)
	outboxPollFailed    = metrics.GetOrCreateCounter(`outbox_relay_total{result="poll_failed"}`)
)

// OutboxPoller relays event_outbox rows to the broker. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several relays can run side by side.
type OutboxPoller struct {
	pool        *pgxpool.Pool
	publisher   Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, publisher Publisher, topicPrefix string, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:        pool,
		publisher:   publisher,
		logger:      logger,
		topicPrefix: topicPrefix,
		interval:    500 * time.Millisecond,
		batchSize:   100,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			n, err := p.poll(ctx)
			if err != nil {
				outboxPollFailed.Inc()
				p.logger.Error("outbox poll error", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox poll complete", "published", n)
			}
		}
	}
}

type outboxRow struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// Topic maps an event to its Kafka topic, e.g. rafflehub.payment_request.
func (p *OutboxPoller) Topic(aggregateType string) string {
	return p.topicPrefix + "." + aggregateType
}

func (p *OutboxPoller) poll(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT event_id, aggregate_type, aggregate_id, event_type, partition_key, payload, occurred_at
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("query outbox: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outboxRow, error) {
		var e outboxRow
		err := row.Scan(&e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.PartitionKey, &e.Payload, &e.OccurredAt)
		return e, err
	})
	if err != nil {
		return 0, fmt.Errorf("scan outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		msg, _ := json.Marshal(map[string]interface{}{
			"event_id":       e.EventID,
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID,
			"event_type":     e.EventType,
			"payload":        e.Payload,
			"occurred_at":    e.OccurredAt,
		})

		if err := p.publisher.Publish(ctx, p.Topic(e.AggregateType), []byte(e.PartitionKey), msg); err != nil {
			outboxPublishFailed.Inc()
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "event_type", e.EventType, "error", err)
			// Stop here so later events for the same key are not published ahead of this one.
			break
		}
		published = append(published, e.EventID)
	}

	if len(published) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE event_outbox SET published_at = now() WHERE event_id = ANY($1)`, published); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	outboxPublished.Add(len(published))
	return len(published), nil
}
