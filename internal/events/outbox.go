// Package events queues outbound WhatsApp messages in Postgres and delivers
// them to the Z-API gateway from a polling worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Message statuses as stored in outbound_messages.status.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// OutboundMessage is one queued delivery.
type OutboundMessage struct {
	ID        uuid.UUID
	Module    string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler emits a message to the downstream gateway.
type DeliveryHandler interface {
	Handle(ctx context.Context, msg OutboundMessage) error
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists outbound messages until they are delivered.
type OutboxStore struct {
	db DB
}

func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: db}
}

// Enqueue stores payload as pending under module.
func (s *OutboxStore) Enqueue(ctx context.Context, module string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbound_messages (id, module, payload, status)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.Exec(ctx, query, id, module, data, StatusPending); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbound message: %w", err)
	}
	return id, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboundMessage, error) {
	query := `
		SELECT id, module, payload, attempts, created_at
		FROM outbound_messages
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []OutboundMessage
	for rows.Next() {
		var msg OutboundMessage
		var payload []byte
		if err := rows.Scan(&msg.ID, &msg.Module, &payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbound message: %w", err)
		}
		msg.Payload = append([]byte(nil), payload...)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, StatusDone)
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, StatusFailed)
}

func (s *OutboxStore) mark(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE outbound_messages
		SET status = $2, attempts = attempts + 1, processed_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	if _, err := s.db.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("events: mark %s: %w", status, err)
	}
	return nil
}
