package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
)

// ErrDeliveryNotFound indicates the delivery row does not exist.
var ErrDeliveryNotFound = errors.New("delivery not found")

// Delivery statuses.
const (
	DeliveryPending    = "pending"
	DeliveryDelivering = "delivering"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
	DeliveryDead       = "dead"
)

// Delivery is one scheduled webhook push for a domain event.
type Delivery struct {
	ID             uuid.UUID  `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	MaxAttempt     int        `json:"max_attempt"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	LastError      *string    `json:"last_error"`
	ResponseStatus *int       `json:"response_status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
}

// Store defines the persistence operations required for webhook delivery.
type Store interface {
	Enqueue(ctx context.Context, eventID uuid.UUID, maxAttempt int) (Delivery, error)
	DequeueDue(ctx context.Context, limit int) ([]Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error)
	MarkDelivering(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, status int) error
	MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, reason string) error
	MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error
	ResetForReplay(ctx context.Context, id uuid.UUID) (Delivery, error)
	ListDeliveries(ctx context.Context, status string, limit, offset int) ([]Delivery, int, error)
	GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error)
}

// PGStore implements Store on the webhook_deliveries and domain_events tables.
type PGStore struct {
	DB db.DBTX
}

const deliveryColumns = `id, event_id, status, attempt, max_attempt, next_attempt_at,
	last_error, response_status, created_at, updated_at, delivered_at`

func (s *PGStore) Enqueue(ctx context.Context, eventID uuid.UUID, maxAttempt int) (Delivery, error) {
	if maxAttempt <= 0 {
		maxAttempt = 6
	}
	row := s.DB.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (id, event_id, status, max_attempt, next_attempt_at)
		VALUES ($1, $2, 'pending', $3, NOW())
		ON CONFLICT (event_id) DO UPDATE SET updated_at = NOW()
		RETURNING `+deliveryColumns,
		uuid.New(), eventID, maxAttempt)
	return scanDelivery(row)
}

func (s *PGStore) DequeueDue(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE status IN ('pending', 'failed') AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDeliveryRows(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (s *PGStore) GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (s *PGStore) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivering', attempt = attempt + 1, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (s *PGStore) MarkDelivered(ctx context.Context, id uuid.UUID, status int) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivered', response_status = $2, delivered_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id, status)
	return err
}

func (s *PGStore) MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delay time.Duration, reason string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', last_error = $2,
		    next_attempt_at = NOW() + $3::interval, updated_at = NOW()
		WHERE id = $1`, id, reason, fmt.Sprintf("%d seconds", int(delay.Seconds())))
	return err
}

func (s *PGStore) MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error {
	if _, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'dead', last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webhook_dlq (delivery_id, reason) VALUES ($1, $2)
		ON CONFLICT (delivery_id) DO UPDATE SET reason = EXCLUDED.reason`, id, reason)
	return err
}

func (s *PGStore) ResetForReplay(ctx context.Context, id uuid.UUID) (Delivery, error) {
	if _, err := s.DB.Exec(ctx, `DELETE FROM webhook_dlq WHERE delivery_id = $1`, id); err != nil {
		return Delivery{}, err
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE webhook_deliveries
		SET status = 'pending', attempt = 0, last_error = NULL,
		    next_attempt_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+deliveryColumns, id)
	return scanDelivery(row)
}

func (s *PGStore) ListDeliveries(ctx context.Context, status string, limit, offset int) ([]Delivery, int, error) {
	where := ``
	args := []any{}
	if status != "" {
		where = `WHERE status = $1`
		args = append(args, status)
	}
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM webhook_deliveries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM webhook_deliveries %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		deliveryColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDeliveryRows(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, total, rows.Err()
}

func (s *PGStore) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, topic, aggregate_id, payload, occurred_at
		FROM domain_events WHERE id = $1`, id)
	var ev events.Event
	err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.Event{}, fmt.Errorf("event %s: %w", id, ErrDeliveryNotFound)
	}
	return ev, err
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt, &d.NextAttemptAt,
		&d.LastError, &d.ResponseStatus, &d.CreatedAt, &d.UpdatedAt, &d.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrDeliveryNotFound
	}
	return d, err
}

func scanDeliveryRows(rows pgx.Rows) (Delivery, error) {
	var d Delivery
	err := rows.Scan(&d.ID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt, &d.NextAttemptAt,
		&d.LastError, &d.ResponseStatus, &d.CreatedAt, &d.UpdatedAt, &d.DeliveredAt)
	if err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	return d, nil
}
