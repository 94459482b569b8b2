package repository

import (
	"context"

	"github.com/honeynil/LandEscrowService/internal/models"
)

// DirectoryRepository reads the listing and user records owned by the marketplace.
type DirectoryRepository interface {
	GetListing(ctx context.Context, id string) (*models.ListingSummary, error)
	GetUser(ctx context.Context, id string) (*models.UserSummary, error)
}
