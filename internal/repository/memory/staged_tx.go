package memory

import (
	"context"
	"time"

	"github.com/honeynil/LandEscrowService/internal/models"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

// stagedTx collects the writes of one WithLock call against a working copy.
type stagedTx struct {
	work    *models.Transaction
	changes []models.StatusChange
	events  []*models.OutboxEvent
}

func (w *stagedTx) SaveTransaction(_ context.Context, tx *models.Transaction) error {
	if tx.Version != w.work.Version {
		return pkgerrors.ErrConcurrentUpdate
	}
	w.work.Status = tx.Status
	w.work.UpdatedAt = tx.UpdatedAt
	w.work.ClosedAt = nil
	if tx.ClosedAt != nil {
		at := *tx.ClosedAt
		w.work.ClosedAt = &at
	}
	w.work.Version++
	tx.Version++
	return nil
}

func (w *stagedTx) SaveMilestone(_ context.Context, m *models.Milestone) error {
	target := w.work.FindMilestone(m.ID)
	if target == nil {
		return pkgerrors.ErrMilestoneNotFound
	}
	target.BuyerApprovedAt = copyTime(m.BuyerApprovedAt)
	target.SellerApprovedAt = copyTime(m.SellerApprovedAt)
	target.CompletedAt = copyTime(m.CompletedAt)
	return nil
}

func (w *stagedTx) AddDispute(_ context.Context, d *models.Dispute) error {
	c := *d
	c.ResolvedAt = copyTime(d.ResolvedAt)
	w.work.Disputes = append(w.work.Disputes, c)
	return nil
}

func (w *stagedTx) SaveDispute(_ context.Context, d *models.Dispute) error {
	for i := range w.work.Disputes {
		if w.work.Disputes[i].ID == d.ID {
			w.work.Disputes[i].Status = d.Status
			w.work.Disputes[i].ResolvedAt = copyTime(d.ResolvedAt)
			return nil
		}
	}
	return pkgerrors.ErrDisputeNotFound
}

func (w *stagedTx) AddPayment(_ context.Context, p *models.Payment) error {
	w.work.Payments = append(w.work.Payments, *p)
	return nil
}

func (w *stagedTx) SavePayment(_ context.Context, p *models.Payment) error {
	for i := range w.work.Payments {
		if w.work.Payments[i].ID == p.ID {
			w.work.Payments[i] = *p
			return nil
		}
	}
	return pkgerrors.ErrPaymentNotFound
}

func (w *stagedTx) AppendStatusChange(_ context.Context, c *models.StatusChange) error {
	w.changes = append(w.changes, *c)
	return nil
}

func (w *stagedTx) Enqueue(_ context.Context, evt *models.OutboxEvent) error {
	w.events = append(w.events, cloneEvent(evt))
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
