package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	"github.com/lib/pq"
)

const outboxTracer = "outbox-repository"

// MaxOutboxAttempts is how many publish failures an event tolerates before it is
// parked as FAILED.
const MaxOutboxAttempts = 5

// OutboxLease is how long a claimed event may stay PROCESSING before another relay
// takes it back.
const OutboxLease = 5 * time.Minute

type PostgresOutboxRepository struct {
	db *sql.DB
}

func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

var _ repository.OutboxRepository = (*PostgresOutboxRepository)(nil)

// FetchPending claims up to limit pending events, plus claimed events whose lease has
// run out. Rows locked by another relay are skipped.
func (r *PostgresOutboxRepository) FetchPending(ctx context.Context, limit int) (_ []*models.OutboxEvent, err error) {
	ctx, _, done := instrument(ctx, outboxTracer, "FetchPendingEvents")
	defer done(&err)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	now := time.Now().UTC()
	const selectQuery = `SELECT id, aggregate_id, type, payload, status, attempts, created_at FROM outbox WHERE status = 'PENDING' OR (status = 'PROCESSING' AND claimed_at < $2) ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED`
	rows, err := dbTx.QueryContext(ctx, selectQuery, limit, now.Add(-OutboxLease))
	if err != nil {
		return nil, rollback(dbTx, "FetchPending", fmt.Errorf("failed to fetch pending events: %w", err))
	}

	var events []*models.OutboxEvent
	var ids []string
	for rows.Next() {
		var e models.OutboxEvent
		if err = rows.Scan(&e.ID, &e.AggregateID, &e.Type, &e.Payload, &e.Status, &e.Attempts, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, rollback(dbTx, "FetchPending", fmt.Errorf("failed to scan event: %w", err))
		}
		events = append(events, &e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, rollback(dbTx, "FetchPending", err)
	}

	if len(ids) > 0 {
		const claimQuery = `UPDATE outbox SET status = 'PROCESSING', claimed_at = $2 WHERE id = ANY($1)`
		if _, err = dbTx.ExecContext(ctx, claimQuery, pq.Array(ids), now); err != nil {
			return nil, rollback(dbTx, "FetchPending", fmt.Errorf("failed to claim events: %w", err))
		}
		for _, e := range events {
			e.Status = models.OutboxProcessing
			e.ClaimedAt = &now
		}
	}

	if err = dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return events, nil
}

func (r *PostgresOutboxRepository) MarkProcessed(ctx context.Context, id string) (err error) {
	ctx, _, done := instrument(ctx, outboxTracer, "MarkEventProcessed")
	defer done(&err)

	const query = `UPDATE outbox SET status = 'PROCESSED', processed_at = $1 WHERE id = $2`
	if _, err = r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// MarkFailed returns the event to PENDING for another attempt, or parks it as FAILED
// once MaxOutboxAttempts is reached.
func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id string) (err error) {
	ctx, _, done := instrument(ctx, outboxTracer, "MarkEventFailed")
	defer done(&err)

	const query = `UPDATE outbox SET attempts = attempts + 1, claimed_at = NULL, status = CASE WHEN attempts + 1 >= $1 THEN 'FAILED' ELSE 'PENDING' END WHERE id = $2`
	if _, err = r.db.ExecContext(ctx, query, MaxOutboxAttempts, id); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}
