package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const directoryTracer = "directory-repository"

// PostgresDirectoryRepository reads the marketplace's listings and users tables.
// The escrow service never writes to them.
type PostgresDirectoryRepository struct {
	db *sql.DB
}

func NewPostgresDirectoryRepository(db *sql.DB) *PostgresDirectoryRepository {
	return &PostgresDirectoryRepository{db: db}
}

var _ repository.DirectoryRepository = (*PostgresDirectoryRepository)(nil)

func (r *PostgresDirectoryRepository) GetListing(ctx context.Context, id string) (_ *models.ListingSummary, err error) {
	ctx, span, done := instrument(ctx, directoryTracer, "GetListing")
	defer done(&err)
	span.SetAttributes(attribute.String("listing_id", id))

	query := `SELECT id, title, region, district, seller_id, status FROM listings WHERE id = $1`
	var l models.ListingSummary
	var district sql.NullString
	err = r.db.QueryRowContext(ctx, query, id).Scan(&l.ID, &l.Title, &l.Region, &district, &l.SellerID, &l.Status)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrListingNotFound
	}
	if err != nil {
		slog.Error("failed to get listing", "method", "GetListing", "listing_id", id, "error", err)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	l.District = district.String
	return &l, nil
}

func (r *PostgresDirectoryRepository) GetUser(ctx context.Context, id string) (_ *models.UserSummary, err error) {
	ctx, span, done := instrument(ctx, directoryTracer, "GetUser")
	defer done(&err)
	span.SetAttributes(attribute.String("user_id", id))

	query := `SELECT id, full_name, email, kyc_tier FROM users WHERE id = $1`
	var u models.UserSummary
	err = r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.FullName, &u.Email, &u.KYCTier)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get user", "method", "GetUser", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
