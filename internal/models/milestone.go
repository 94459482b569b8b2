package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Milestone struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transactionId"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	AmountGhs        decimal.Decimal `json:"amountGhs"`
	SortOrder        int             `json:"sortOrder"`
	BuyerApprovedAt  *time.Time      `json:"buyerApprovedAt"`
	SellerApprovedAt *time.Time      `json:"sellerApprovedAt"`
	CompletedAt      *time.Time      `json:"completedAt"`
}

// ApprovedBy reports whether the given side has already signed off.
func (m *Milestone) ApprovedBy(role Role) bool {
	switch role {
	case RoleBuyer:
		return m.BuyerApprovedAt != nil
	case RoleSeller:
		return m.SellerApprovedAt != nil
	default:
		return false
	}
}

func (m Milestone) clone() Milestone {
	m.BuyerApprovedAt = copyTime(m.BuyerApprovedAt)
	m.SellerApprovedAt = copyTime(m.SellerApprovedAt)
	m.CompletedAt = copyTime(m.CompletedAt)
	return m
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
