package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

const DefaultMilestoneName = "Full payment"

type MilestoneInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	AmountGhs   decimal.Decimal `json:"amountGhs"`
}

type NewTransactionInput struct {
	ListingID           string           `json:"listingId"`
	BuyerID             string           `json:"buyerId"`
	SellerID            string           `json:"sellerId"`
	AgreedPriceGhs      decimal.Decimal  `json:"agreedPriceGhs"`
	PlatformFeeBps      int              `json:"platformFeeBps"`
	VerificationDaysMin int              `json:"verificationDaysMin"`
	Milestones          []MilestoneInput `json:"milestones"`
}

// NewTransaction validates the input and builds a transaction in CREATED. Without
// explicit milestones a single milestone covering the full price is attached.
func NewTransaction(in NewTransactionInput, enforceMilestoneTotal bool, now time.Time) (*Transaction, error) {
	if strings.TrimSpace(in.ListingID) == "" {
		return nil, fmt.Errorf("%w: listing id is required", pkgerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(in.BuyerID) == "" || strings.TrimSpace(in.SellerID) == "" {
		return nil, fmt.Errorf("%w: buyer and seller are required", pkgerrors.ErrInvalidInput)
	}
	if in.BuyerID == in.SellerID {
		return nil, pkgerrors.ErrSameParty
	}
	if !in.AgreedPriceGhs.IsPositive() {
		return nil, pkgerrors.ErrNonPositivePrice
	}
	if in.PlatformFeeBps < 0 || in.PlatformFeeBps > MaxFeeBps {
		return nil, pkgerrors.ErrFeeOutOfRange
	}
	if in.VerificationDaysMin < 0 {
		return nil, pkgerrors.ErrNegativeVerificationDay
	}

	now = now.UTC()
	tx := &Transaction{
		ID:                  uuid.NewString(),
		ListingID:           in.ListingID,
		BuyerID:             in.BuyerID,
		SellerID:            in.SellerID,
		Status:              StatusCreated,
		AgreedPriceGhs:      in.AgreedPriceGhs.Round(2),
		PlatformFeeBps:      in.PlatformFeeBps,
		VerificationDaysMin: in.VerificationDaysMin,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	inputs := in.Milestones
	if len(inputs) == 0 {
		inputs = []MilestoneInput{{Name: DefaultMilestoneName, AmountGhs: tx.AgreedPriceGhs}}
	}
	for i, mi := range inputs {
		if strings.TrimSpace(mi.Name) == "" {
			return nil, fmt.Errorf("%w: milestone %d name is required", pkgerrors.ErrInvalidMilestone, i+1)
		}
		if !mi.AmountGhs.IsPositive() {
			return nil, fmt.Errorf("%w: milestone %d amount must be positive", pkgerrors.ErrInvalidMilestone, i+1)
		}
		tx.Milestones = append(tx.Milestones, Milestone{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			Name:          strings.TrimSpace(mi.Name),
			Description:   strings.TrimSpace(mi.Description),
			AmountGhs:     mi.AmountGhs.Round(2),
			SortOrder:     i + 1,
		})
	}

	if enforceMilestoneTotal && tx.MilestoneTotal().GreaterThan(tx.AgreedPriceGhs) {
		return nil, pkgerrors.ErrMilestoneTotalExceeded
	}
	return tx, nil
}
