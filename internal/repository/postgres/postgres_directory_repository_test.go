package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDirectoryRepository_GetListing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresDirectoryRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, region, district, seller_id, status FROM listings WHERE id = $1`)).
			WithArgs("listing-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "region", "district", "seller_id", "status"}).
				AddRow("listing-1", "2 plots at Oyarifa", "Greater Accra", nil, "seller-1", "ACTIVE"))

		l, err := repo.GetListing(ctx, "listing-1")
		require.NoError(t, err)
		assert.Equal(t, "Greater Accra", l.Region)
		assert.Empty(t, l.District)
		assert.Equal(t, models.ListingActive, l.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListingNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM listings WHERE id = $1`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		l, err := repo.GetListing(ctx, "missing")
		assert.Nil(t, l)
		assert.ErrorIs(t, err, pkgerrors.ErrListingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresDirectoryRepository_GetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresDirectoryRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, full_name, email, kyc_tier FROM users WHERE id = $1`)).
			WithArgs("buyer-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "kyc_tier"}).
				AddRow("buyer-1", "Ama Mensah", "ama@example.com", 2))

		u, err := repo.GetUser(ctx, "buyer-1")
		require.NoError(t, err)
		assert.Equal(t, "Ama Mensah", u.FullName)
		assert.Equal(t, 2, u.KYCTier)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
			WithArgs("buyer-1").
			WillReturnError(fmt.Errorf("database error"))

		u, err := repo.GetUser(ctx, "buyer-1")
		assert.Nil(t, u)
		assert.Contains(t, err.Error(), "failed to get user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
