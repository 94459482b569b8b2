package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	"github.com/honeynil/LandEscrowService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	txID        = "5b1e0a6c-3d55-4c0e-9d0a-1f2e3d4c5b6a"
	milestoneID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

var transactionCols = []string{"id", "listing_id", "buyer_id", "seller_id", "status", "agreed_price_ghs", "platform_fee_bps", "verification_days_min", "version", "created_at", "updated_at", "closed_at"}

func newTestTransaction() *models.Transaction {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Transaction{
		ID:             txID,
		ListingID:      "listing-1",
		BuyerID:        "buyer-1",
		SellerID:       "seller-1",
		Status:         models.StatusCreated,
		AgreedPriceGhs: decimal.RequireFromString("150000.00"),
		PlatformFeeBps: 250,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		Milestones: []models.Milestone{{
			ID:            milestoneID,
			TransactionID: txID,
			Name:          "Full payment",
			AmountGhs:     decimal.RequireFromString("150000.00"),
			SortOrder:     1,
		}},
	}
}

func expectLoad(mock sqlmock.Sqlmock, query string, tx *models.Transaction) {
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(tx.ID).
		WillReturnRows(sqlmock.NewRows(transactionCols).
			AddRow(tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, string(tx.Status), tx.AgreedPriceGhs.String(),
				tx.PlatformFeeBps, tx.VerificationDaysMin, tx.Version, tx.CreatedAt, tx.UpdatedAt, nil))
	milestones := sqlmock.NewRows([]string{"id", "transaction_id", "name", "description", "amount_ghs", "sort_order", "buyer_approved_at", "seller_approved_at", "completed_at"})
	for _, m := range tx.Milestones {
		milestones.AddRow(m.ID, m.TransactionID, m.Name, m.Description, m.AmountGhs.String(), m.SortOrder, nil, nil, nil)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_milestones WHERE transaction_id = $1`)).
		WithArgs(tx.ID).
		WillReturnRows(milestones)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_disputes WHERE transaction_id = $1`)).
		WithArgs(tx.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "raised_by", "reason", "status", "created_at", "resolved_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_payments WHERE transaction_id = $1`)).
		WithArgs(tx.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "type", "amount", "status", "reference", "payment_url", "created_at", "updated_at"}))
}

func TestPostgresEscrowRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()

	t.Run("NilTransaction", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		tx := newTestTransaction()
		evt := models.NewOutboxEvent(tx.ID, "escrow.created", []byte(`{}`))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_transactions`)).
			WithArgs(tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, tx.Status, tx.AgreedPriceGhs, tx.PlatformFeeBps,
				tx.VerificationDaysMin, tx.Version, tx.CreatedAt, tx.UpdatedAt, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_milestones`)).
			WithArgs(milestoneID, tx.ID, "Full payment", "", tx.Milestones[0].AmountGhs, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO escrow_status_changes`)).
			WithArgs(tx.ID, nil, models.StatusCreated, "create", "", "", tx.CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO outbox`)).
			WithArgs(evt.ID, tx.ID, "escrow.created", evt.Payload, models.OutboxPending, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Create(ctx, tx, evt)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MilestoneInsertError", func(t *testing.T) {
		tx := newTestTransaction()
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_transactions`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_milestones`)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := repo.Create(ctx, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create milestone")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackError", func(t *testing.T) {
		tx := newTestTransaction()
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_transactions`)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		err := repo.Create(ctx, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.Contains(t, err.Error(), "database error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		tx := newTestTransaction()
		tx.Milestones = nil
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO escrow_transactions`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO escrow_status_changes`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))

		err := repo.Create(ctx, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresEscrowRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		expected := newTestTransaction()
		expectLoad(mock, `SELECT id, listing_id, buyer_id, seller_id, status, agreed_price_ghs, platform_fee_bps, verification_days_min, version, created_at, updated_at, closed_at FROM escrow_transactions WHERE id = $1`, expected)

		tx, err := repo.GetByID(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, expected.BuyerID, tx.BuyerID)
		assert.Equal(t, models.StatusCreated, tx.Status)
		assert.True(t, expected.AgreedPriceGhs.Equal(tx.AgreedPriceGhs))
		assert.Nil(t, tx.ClosedAt)
		require.Len(t, tx.Milestones, 1)
		assert.Equal(t, milestoneID, tx.Milestones[0].ID)
		assert.Nil(t, tx.Milestones[0].CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_transactions WHERE id = $1`)).
			WithArgs(txID).
			WillReturnError(sql.ErrNoRows)

		tx, err := repo.GetByID(ctx, txID)
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_transactions WHERE id = $1`)).
			WithArgs(txID).
			WillReturnError(fmt.Errorf("database error"))

		tx, err := repo.GetByID(ctx, txID)
		assert.Nil(t, tx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get transaction by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MalformedID", func(t *testing.T) {
		tx, err := repo.GetByID(ctx, "abc")
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)

		history, err := repo.History(ctx, "abc")
		assert.Nil(t, history)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresEscrowRepository_Version(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM escrow_transactions WHERE id = $1`)).
			WithArgs(txID).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

		v, err := repo.Version(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, 4, v)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM escrow_transactions`)).
			WithArgs(txID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Version(ctx, txID)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MalformedID", func(t *testing.T) {
		_, err := repo.Version(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresEscrowRepository_WithLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()
	lockQuery := `FROM escrow_transactions WHERE id = $1 FOR UPDATE`

	t.Run("Success", func(t *testing.T) {
		stored := newTestTransaction()
		mock.ExpectBegin()
		expectLoad(mock, lockQuery, stored)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE escrow_transactions SET status = $1, closed_at = $2, updated_at = $3, version = version + 1 WHERE id = $4 AND version = $5`)).
			WithArgs(models.StatusEscrowRequested, nil, sqlmock.AnyArg(), txID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO escrow_status_changes`)).
			WithArgs(txID, models.StatusCreated, models.StatusEscrowRequested, "fund", "buyer-1", models.RoleBuyer, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		var version int
		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			tx.Status = models.StatusEscrowRequested
			tx.UpdatedAt = time.Now().UTC()
			if err := w.SaveTransaction(ctx, tx); err != nil {
				return err
			}
			version = tx.Version
			return w.AppendStatusChange(ctx, &models.StatusChange{
				TransactionID: txID,
				FromStatus:    models.StatusCreated,
				ToStatus:      models.StatusEscrowRequested,
				Action:        "fund",
				ActorID:       "buyer-1",
				ActorRole:     models.RoleBuyer,
				CreatedAt:     tx.UpdatedAt,
			})
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConcurrentUpdate", func(t *testing.T) {
		stored := newTestTransaction()
		mock.ExpectBegin()
		expectLoad(mock, lockQuery, stored)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE escrow_transactions`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			tx.Status = models.StatusEscrowRequested
			return w.SaveTransaction(ctx, tx)
		})
		assert.ErrorIs(t, err, pkgerrors.ErrConcurrentUpdate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CallbackErrorRollsBack", func(t *testing.T) {
		stored := newTestTransaction()
		mock.ExpectBegin()
		expectLoad(mock, lockQuery, stored)
		mock.ExpectRollback()

		sentinel := errors.New("settlement failed")
		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockQuery)).
			WithArgs(txID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		called := false
		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MalformedID", func(t *testing.T) {
		called := false
		err := repo.WithLock(ctx, "abc", func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingDispute", func(t *testing.T) {
		stored := newTestTransaction()
		mock.ExpectBegin()
		expectLoad(mock, lockQuery, stored)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE escrow_disputes SET status = $1, resolved_at = $2 WHERE id = $3 AND transaction_id = $4`)).
			WithArgs(models.DisputeResolved, sqlmock.AnyArg(), "dispute-1", txID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			now := time.Now().UTC()
			return w.SaveDispute(ctx, &models.Dispute{ID: "dispute-1", TransactionID: txID, Status: models.DisputeResolved, ResolvedAt: &now})
		})
		assert.ErrorIs(t, err, pkgerrors.ErrDisputeNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingPayment", func(t *testing.T) {
		stored := newTestTransaction()
		mock.ExpectBegin()
		expectLoad(mock, lockQuery, stored)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE escrow_payments SET status = $1, reference = $2, payment_url = $3, updated_at = $4 WHERE id = $5 AND transaction_id = $6`)).
			WithArgs(models.PaymentConfirmed, "PAY-1", "", sqlmock.AnyArg(), "payment-1", txID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
			return w.SavePayment(ctx, &models.Payment{ID: "payment-1", TransactionID: txID, Status: models.PaymentConfirmed, Reference: "PAY-1", UpdatedAt: time.Now().UTC()})
		})
		assert.ErrorIs(t, err, pkgerrors.ErrPaymentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresEscrowRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		tx := newTestTransaction()
		closedAt := tx.CreatedAt.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_transactions WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`)).
			WithArgs("buyer-1").
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow(tx.ID, tx.ListingID, tx.BuyerID, tx.SellerID, "CLOSED", "150000.00", 250, 0, 3, tx.CreatedAt, closedAt, closedAt))

		list, err := repo.ListByUser(ctx, "buyer-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.StatusClosed, list[0].Status)
		require.NotNil(t, list[0].ClosedAt)
		assert.True(t, closedAt.Equal(*list[0].ClosedAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_transactions WHERE buyer_id = $1`)).
			WithArgs("buyer-1").
			WillReturnError(fmt.Errorf("database error"))

		list, err := repo.ListByUser(ctx, "buyer-1")
		assert.Nil(t, list)
		assert.Contains(t, err.Error(), "failed to list transactions")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresEscrowRepository_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)

	at := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM escrow_status_changes WHERE transaction_id = $1 ORDER BY id`)).
		WithArgs(txID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "from_status", "to_status", "action", "actor_id", "actor_role", "created_at"}).
			AddRow(1, txID, nil, "CREATED", "create", "buyer-1", "buyer", at).
			AddRow(2, txID, "CREATED", "ESCROW_REQUESTED", "fund", "buyer-1", "buyer", at))

	history, err := repo.History(context.Background(), txID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.Status(""), history[0].FromStatus)
	assert.Equal(t, models.StatusEscrowRequested, history[1].ToStatus)
	assert.Equal(t, models.RoleBuyer, history[1].ActorRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEscrowRepository_FindTransactionIDByPaymentReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresEscrowRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT transaction_id FROM escrow_payments WHERE reference = $1`)).
			WithArgs("PAY-123").
			WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).AddRow(txID))

		id, err := repo.FindTransactionIDByPaymentReference(ctx, "PAY-123")
		assert.NoError(t, err)
		assert.Equal(t, txID, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT transaction_id FROM escrow_payments`)).
			WithArgs("PAY-404").
			WillReturnError(sql.ErrNoRows)

		id, err := repo.FindTransactionIDByPaymentReference(ctx, "PAY-404")
		assert.Empty(t, id)
		assert.ErrorIs(t, err, pkgerrors.ErrPaymentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
