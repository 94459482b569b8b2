package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated            Status = "CREATED"
	StatusEscrowRequested    Status = "ESCROW_REQUESTED"
	StatusFunded             Status = "FUNDED"
	StatusVerificationPeriod Status = "VERIFICATION_PERIOD"
	StatusDisputed           Status = "DISPUTED"
	StatusReadyToRelease     Status = "READY_TO_RELEASE"
	StatusReleased           Status = "RELEASED"
	StatusRefunded           Status = "REFUNDED"
	StatusClosed             Status = "CLOSED"
)

var AllStatuses = []Status{
	StatusCreated,
	StatusEscrowRequested,
	StatusFunded,
	StatusVerificationPeriod,
	StatusDisputed,
	StatusReadyToRelease,
	StatusReleased,
	StatusRefunded,
	StatusClosed,
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further transitions and always carry a closed_at.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusClosed
}

const MaxFeeBps = 10_000

var bpsDivisor = decimal.NewFromInt(MaxFeeBps)

type Transaction struct {
	ID                  string          `json:"id"`
	ListingID           string          `json:"listingId"`
	BuyerID             string          `json:"buyerId"`
	SellerID            string          `json:"sellerId"`
	Status              Status          `json:"status"`
	AgreedPriceGhs      decimal.Decimal `json:"agreedPriceGhs"`
	PlatformFeeBps      int             `json:"platformFeeBps"`
	VerificationDaysMin int             `json:"verificationDaysMin"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	ClosedAt            *time.Time      `json:"closedAt"`

	Milestones []Milestone `json:"milestones"`
	Disputes   []Dispute   `json:"disputes,omitempty"`
	Payments   []Payment   `json:"payments,omitempty"`
}

// FeeGhs is the platform fee on the agreed price, rounded to pesewas.
func (t *Transaction) FeeGhs() decimal.Decimal {
	return t.AgreedPriceGhs.
		Mul(decimal.NewFromInt(int64(t.PlatformFeeBps))).
		Div(bpsDivisor).
		Round(2)
}

func (t *Transaction) SellerPayoutGhs() decimal.Decimal {
	return t.AgreedPriceGhs.Sub(t.FeeGhs())
}

// RoleOf resolves the part a user plays in this transaction. Admin rights come from
// the caller's credentials and take precedence.
func (t *Transaction) RoleOf(userID string, admin bool) Role {
	switch {
	case admin:
		return RoleAdmin
	case userID != "" && userID == t.BuyerID:
		return RoleBuyer
	case userID != "" && userID == t.SellerID:
		return RoleSeller
	default:
		return RoleNone
	}
}

func (t *Transaction) FindMilestone(id string) *Milestone {
	for i := range t.Milestones {
		if t.Milestones[i].ID == id {
			return &t.Milestones[i]
		}
	}
	return nil
}

func (t *Transaction) AllMilestonesCompleted() bool {
	if len(t.Milestones) == 0 {
		return false
	}
	for _, m := range t.Milestones {
		if m.CompletedAt == nil {
			return false
		}
	}
	return true
}

func (t *Transaction) MilestoneTotal() decimal.Decimal {
	total := decimal.Zero
	for _, m := range t.Milestones {
		total = total.Add(m.AmountGhs)
	}
	return total
}

func (t *Transaction) OpenDisputes() []*Dispute {
	var open []*Dispute
	for i := range t.Disputes {
		if t.Disputes[i].Status == DisputeOpen {
			open = append(open, &t.Disputes[i])
		}
	}
	return open
}

// Clone returns a deep copy so staged mutations never leak into a caller's value.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		clone.ClosedAt = &at
	}
	clone.Milestones = make([]Milestone, len(t.Milestones))
	for i, m := range t.Milestones {
		clone.Milestones[i] = m.clone()
	}
	clone.Disputes = append([]Dispute(nil), t.Disputes...)
	clone.Payments = append([]Payment(nil), t.Payments...)
	return &clone
}
