package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "escrow-repository"

const transactionColumns = `id, listing_id, buyer_id, seller_id, status, agreed_price_ghs, platform_fee_bps, verification_days_min, version, created_at, updated_at, closed_at`

const (
	selectTransactionQuery = `SELECT ` + transactionColumns + ` FROM escrow_transactions WHERE id = $1`
	lockTransactionQuery   = selectTransactionQuery + ` FOR UPDATE`
	selectVersionQuery     = `SELECT version FROM escrow_transactions WHERE id = $1`
	listByUserQuery        = `SELECT ` + transactionColumns + ` FROM escrow_transactions WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`
	insertTransactionQuery = `INSERT INTO escrow_transactions (` + transactionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	updateTransactionQuery = `UPDATE escrow_transactions SET status = $1, closed_at = $2, updated_at = $3, version = version + 1 WHERE id = $4 AND version = $5`

	selectMilestonesQuery = `SELECT id, transaction_id, name, description, amount_ghs, sort_order, buyer_approved_at, seller_approved_at, completed_at FROM escrow_milestones WHERE transaction_id = $1 ORDER BY sort_order`
	insertMilestoneQuery  = `INSERT INTO escrow_milestones (id, transaction_id, name, description, amount_ghs, sort_order) VALUES ($1, $2, $3, $4, $5, $6)`
	updateMilestoneQuery  = `UPDATE escrow_milestones SET buyer_approved_at = $1, seller_approved_at = $2, completed_at = $3 WHERE id = $4 AND transaction_id = $5`

	selectDisputesQuery = `SELECT id, transaction_id, raised_by, reason, status, created_at, resolved_at FROM escrow_disputes WHERE transaction_id = $1 ORDER BY created_at`
	insertDisputeQuery  = `INSERT INTO escrow_disputes (id, transaction_id, raised_by, reason, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	updateDisputeQuery  = `UPDATE escrow_disputes SET status = $1, resolved_at = $2 WHERE id = $3 AND transaction_id = $4`

	selectPaymentsQuery         = `SELECT id, transaction_id, type, amount, status, reference, payment_url, created_at, updated_at FROM escrow_payments WHERE transaction_id = $1 ORDER BY created_at`
	insertPaymentQuery          = `INSERT INTO escrow_payments (id, transaction_id, type, amount, status, reference, payment_url, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	updatePaymentQuery          = `UPDATE escrow_payments SET status = $1, reference = $2, payment_url = $3, updated_at = $4 WHERE id = $5 AND transaction_id = $6`
	paymentByReferenceQuery     = `SELECT transaction_id FROM escrow_payments WHERE reference = $1`
	insertStatusChangeQuery     = `INSERT INTO escrow_status_changes (transaction_id, from_status, to_status, action, actor_id, actor_role, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	selectStatusChangesQuery    = `SELECT id, transaction_id, from_status, to_status, action, actor_id, actor_role, created_at FROM escrow_status_changes WHERE transaction_id = $1 ORDER BY id`
	insertOutboxQuery           = `INSERT INTO outbox (id, aggregate_id, type, payload, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
)

type PostgresEscrowRepository struct {
	db *sql.DB
}

func NewPostgresEscrowRepository(db *sql.DB) *PostgresEscrowRepository {
	return &PostgresEscrowRepository{db: db}
}

var _ repository.EscrowRepository = (*PostgresEscrowRepository)(nil)

// Create inserts the transaction, its milestones, the creation audit entry and any
// outbox events in one database transaction.
func (r *PostgresEscrowRepository) Create(ctx context.Context, tx *models.Transaction, events ...*models.OutboxEvent) (err error) {
	ctx, span, done := instrument(ctx, tracerName, "CreateTransaction")
	defer done(&err)

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}
	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("listing_id", tx.ListingID),
		attribute.String("status", string(tx.Status)),
	)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err = dbTx.ExecContext(ctx, insertTransactionQuery,
		tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, tx.Status, tx.AgreedPriceGhs, tx.PlatformFeeBps,
		tx.VerificationDaysMin, tx.Version, tx.CreatedAt, tx.UpdatedAt, tx.ClosedAt,
	); err != nil {
		err = rollback(dbTx, "Create", err)
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.ID, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	for i := range tx.Milestones {
		m := &tx.Milestones[i]
		if _, err = dbTx.ExecContext(ctx, insertMilestoneQuery, m.ID, m.TransactionID, m.Name, m.Description, m.AmountGhs, m.SortOrder); err != nil {
			err = rollback(dbTx, "Create", err)
			slog.Error("failed to create milestone", "method", "Create", "transaction_id", tx.ID, "milestone_id", m.ID, "error", err)
			return fmt.Errorf("failed to create milestone: %w", err)
		}
	}

	w := &escrowTx{q: dbTx}
	created := &models.StatusChange{
		TransactionID: tx.ID,
		ToStatus:      tx.Status,
		Action:        "create",
		CreatedAt:     tx.CreatedAt,
	}
	if err = w.AppendStatusChange(ctx, created); err != nil {
		return rollback(dbTx, "Create", err)
	}
	for _, evt := range events {
		if err = w.Enqueue(ctx, evt); err != nil {
			return rollback(dbTx, "Create", err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "transaction_id", tx.ID, "buyer_id", tx.BuyerID, "seller_id", tx.SellerID, "milestones", len(tx.Milestones))
	return nil
}

func (r *PostgresEscrowRepository) GetByID(ctx context.Context, id string) (_ *models.Transaction, err error) {
	ctx, span, done := instrument(ctx, tracerName, "GetTransactionByID")
	defer done(&err)
	span.SetAttributes(attribute.String("transaction_id", id))

	if err = checkID(id); err != nil {
		return nil, err
	}
	tx, err := loadAggregate(ctx, r.db, selectTransactionQuery, id)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
			slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		}
		return nil, err
	}
	return tx, nil
}

func (r *PostgresEscrowRepository) Version(ctx context.Context, id string) (_ int, err error) {
	ctx, _, done := instrument(ctx, tracerName, "GetTransactionVersion")
	defer done(&err)

	if err = checkID(id); err != nil {
		return 0, err
	}
	var version int
	err = r.db.QueryRowContext(ctx, selectVersionQuery, id).Scan(&version)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction version", "method", "Version", "transaction_id", id, "error", err)
		return 0, fmt.Errorf("failed to get transaction version: %w", err)
	}
	return version, nil
}

func (r *PostgresEscrowRepository) ListByUser(ctx context.Context, userID string) (_ []models.Transaction, err error) {
	ctx, span, done := instrument(ctx, tracerName, "ListTransactionsByUser")
	defer done(&err)
	span.SetAttributes(attribute.String("user_id", userID))

	rows, err := r.db.QueryContext(ctx, listByUserQuery, userID)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	result := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		if err = scanTransaction(rows, &tx); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return result, nil
}

func (r *PostgresEscrowRepository) History(ctx context.Context, id string) (_ []models.StatusChange, err error) {
	ctx, _, done := instrument(ctx, tracerName, "GetTransactionHistory")
	defer done(&err)

	if err = checkID(id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, selectStatusChangesQuery, id)
	if err != nil {
		slog.Error("failed to get history", "method", "History", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	history := []models.StatusChange{}
	for rows.Next() {
		var c models.StatusChange
		var from sql.NullString
		if err = rows.Scan(&c.ID, &c.TransactionID, &from, &c.ToStatus, &c.Action, &c.ActorID, &c.ActorRole, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		c.FromStatus = models.Status(from.String)
		history = append(history, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return history, nil
}

func (r *PostgresEscrowRepository) FindTransactionIDByPaymentReference(ctx context.Context, reference string) (_ string, err error) {
	ctx, _, done := instrument(ctx, tracerName, "FindPaymentByReference")
	defer done(&err)

	var txID string
	err = r.db.QueryRowContext(ctx, paymentByReferenceQuery, reference).Scan(&txID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", pkgerrors.ErrPaymentNotFound
	}
	if err != nil {
		slog.Error("failed to find payment", "method", "FindTransactionIDByPaymentReference", "reference", reference, "error", err)
		return "", fmt.Errorf("failed to find payment: %w", err)
	}
	return txID, nil
}

// WithLock takes the transaction row with SELECT ... FOR UPDATE, so concurrent callers
// on the same transaction run one after another and each sees the previous commit.
func (r *PostgresEscrowRepository) WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error) (err error) {
	ctx, span, done := instrument(ctx, tracerName, "LockTransaction")
	defer done(&err)
	span.SetAttributes(attribute.String("transaction_id", id))

	if err = checkID(id); err != nil {
		return err
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "WithLock", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx, err := loadAggregate(ctx, dbTx, lockTransactionQuery, id)
	if err != nil {
		return rollback(dbTx, "WithLock", err)
	}

	if err = fn(ctx, tx, &escrowTx{q: dbTx}); err != nil {
		return rollback(dbTx, "WithLock", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "WithLock", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkID maps ids that are not UUIDs to not found. Postgres would otherwise reject
// them with an input syntax error.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return pkgerrors.ErrTransactionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner, tx *models.Transaction) error {
	return row.Scan(&tx.ID, &tx.ListingID, &tx.BuyerID, &tx.SellerID, &tx.Status, &tx.AgreedPriceGhs,
		&tx.PlatformFeeBps, &tx.VerificationDaysMin, &tx.Version, &tx.CreatedAt, &tx.UpdatedAt, &tx.ClosedAt)
}

func loadAggregate(ctx context.Context, q querier, query, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := scanTransaction(q.QueryRowContext(ctx, query, id), &tx)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}

	if tx.Milestones, err = loadMilestones(ctx, q, id); err != nil {
		return nil, err
	}
	if tx.Disputes, err = loadDisputes(ctx, q, id); err != nil {
		return nil, err
	}
	if tx.Payments, err = loadPayments(ctx, q, id); err != nil {
		return nil, err
	}
	return &tx, nil
}

func loadMilestones(ctx context.Context, q querier, txID string) ([]models.Milestone, error) {
	rows, err := q.QueryContext(ctx, selectMilestonesQuery, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get milestones: %w", err)
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.ID, &m.TransactionID, &m.Name, &m.Description, &m.AmountGhs, &m.SortOrder,
			&m.BuyerApprovedAt, &m.SellerApprovedAt, &m.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadDisputes(ctx context.Context, q querier, txID string) ([]models.Dispute, error) {
	rows, err := q.QueryContext(ctx, selectDisputesQuery, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get disputes: %w", err)
	}
	defer rows.Close()

	var out []models.Dispute
	for rows.Next() {
		var d models.Dispute
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.RaisedBy, &d.Reason, &d.Status, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func loadPayments(ctx context.Context, q querier, txID string) ([]models.Payment, error) {
	rows, err := q.QueryContext(ctx, selectPaymentsQuery, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.Type, &p.Amount, &p.Status, &p.Reference, &p.PaymentURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
