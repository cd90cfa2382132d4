package eventstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PostgresStore implements Store on a pgx connection pool. The unique index
// on (provider, provider_event_id) is the concurrency-safety primitive:
// concurrent appends of the same identifier resolve in the database with
// exactly one winner, losers observe the unique violation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an event store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("eventstore: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (id, provider, provider_event_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`,
		event.ID, event.Provider, event.ProviderEventID, event.EventType, []byte(event.Payload),
	)
	err := row.Scan(&event.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

const eventColumns = `
	id, provider, provider_event_id, event_type, payload,
	processed, processed_at, retry_count, last_error, quarantined, created_at`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE id = $1`, id)

	var ev Event
	var payload []byte
	err := row.Scan(
		&ev.ID, &ev.Provider, &ev.ProviderEventID, &ev.EventType, &payload,
		&ev.Processed, &ev.ProcessedAt, &ev.RetryCount, &ev.LastError, &ev.Quarantined, &ev.CreatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	ev.Payload = payload
	return &ev, nil
}

// MarkProcessed implements Store.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id uuid.UUID, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processed = true, processed_at = now(), last_error = $2
		WHERE id = $1`, id, note)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkFailed implements Store.
func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET retry_count = retry_count + 1, last_error = $2
		WHERE id = $1`, id, reason)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Quarantine implements Store.
func (s *PostgresStore) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET quarantined = true, last_error = $2
		WHERE id = $1`, id, reason)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListUnprocessed implements Store.
func (s *PostgresStore) ListUnprocessed(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM webhook_events
		WHERE processed = false AND quarantined = false
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(
			&ev.ID, &ev.Provider, &ev.ProviderEventID, &ev.EventType, &payload,
			&ev.Processed, &ev.ProcessedAt, &ev.RetryCount, &ev.LastError, &ev.Quarantined, &ev.CreatedAt,
		); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
