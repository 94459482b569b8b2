package postgres

import (
	"context"
	"fmt"

	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

// escrowTx writes through the *sql.Tx opened by WithLock or Create.
type escrowTx struct {
	q querier
}

var _ repository.EscrowTx = (*escrowTx)(nil)

// SaveTransaction persists status changes guarded by the version the caller loaded.
func (w *escrowTx) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	res, err := w.q.ExecContext(ctx, updateTransactionQuery, tx.Status, tx.ClosedAt, tx.UpdatedAt, tx.ID, tx.Version)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n == 0 {
		return pkgerrors.ErrConcurrentUpdate
	}
	tx.Version++
	return nil
}

func (w *escrowTx) SaveMilestone(ctx context.Context, m *models.Milestone) error {
	res, err := w.q.ExecContext(ctx, updateMilestoneQuery, m.BuyerApprovedAt, m.SellerApprovedAt, m.CompletedAt, m.ID, m.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrMilestoneNotFound
	}
	return nil
}

func (w *escrowTx) AddDispute(ctx context.Context, d *models.Dispute) error {
	if _, err := w.q.ExecContext(ctx, insertDisputeQuery, d.ID, d.TransactionID, d.RaisedBy, d.Reason, d.Status, d.CreatedAt); err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func (w *escrowTx) SaveDispute(ctx context.Context, d *models.Dispute) error {
	res, err := w.q.ExecContext(ctx, updateDisputeQuery, d.Status, d.ResolvedAt, d.ID, d.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrDisputeNotFound
	}
	return nil
}

func (w *escrowTx) AddPayment(ctx context.Context, p *models.Payment) error {
	if _, err := w.q.ExecContext(ctx, insertPaymentQuery, p.ID, p.TransactionID, p.Type, p.Amount, p.Status, p.Reference, p.PaymentURL, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (w *escrowTx) SavePayment(ctx context.Context, p *models.Payment) error {
	res, err := w.q.ExecContext(ctx, updatePaymentQuery, p.Status, p.Reference, p.PaymentURL, p.UpdatedAt, p.ID, p.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrPaymentNotFound
	}
	return nil
}

func (w *escrowTx) AppendStatusChange(ctx context.Context, c *models.StatusChange) error {
	var from any
	if c.FromStatus != "" {
		from = c.FromStatus
	}
	err := w.q.QueryRowContext(ctx, insertStatusChangeQuery, c.TransactionID, from, c.ToStatus, c.Action, c.ActorID, c.ActorRole, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to append status change: %w", err)
	}
	return nil
}

func (w *escrowTx) Enqueue(ctx context.Context, evt *models.OutboxEvent) error {
	if _, err := w.q.ExecContext(ctx, insertOutboxQuery, evt.ID, evt.AggregateID, evt.Type, evt.Payload, evt.Status, evt.CreatedAt); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}
