package repository

import (
	"context"

	"github.com/honeynil/LandEscrowService/internal/models"
)

// EscrowRepository persists escrow transactions together with their milestones,
// disputes, payments and audit trail.
type EscrowRepository interface {
	// Create stores a new transaction with its milestones and the first audit entry.
	Create(ctx context.Context, tx *models.Transaction, events ...*models.OutboxEvent) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	// Version returns the stored version without loading the aggregate.
	Version(ctx context.Context, id string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	History(ctx context.Context, id string) ([]models.StatusChange, error)
	FindTransactionIDByPaymentReference(ctx context.Context, reference string) (string, error)

	// WithLock loads the transaction with the row held exclusively for the duration of
	// fn. Writes made through EscrowTx commit only if fn returns nil.
	WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx *models.Transaction, w EscrowTx) error) error
}

// EscrowTx is the write side available inside WithLock.
type EscrowTx interface {
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	SaveMilestone(ctx context.Context, m *models.Milestone) error
	AddDispute(ctx context.Context, d *models.Dispute) error
	SaveDispute(ctx context.Context, d *models.Dispute) error
	AddPayment(ctx context.Context, p *models.Payment) error
	SavePayment(ctx context.Context, p *models.Payment) error
	AppendStatusChange(ctx context.Context, c *models.StatusChange) error
	Enqueue(ctx context.Context, evt *models.OutboxEvent) error
}
