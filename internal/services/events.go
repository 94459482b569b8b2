package service

import (
	"encoding/json"
	"time"

	"github.com/honeynil/LandEscrowService/internal/models"
)

const (
	EventTransactionCreated  = "escrow.transaction_created"
	EventStatusChanged       = "escrow.status_changed"
	EventMilestoneApproved   = "escrow.milestone_approved"
	EventFundingFailed       = "escrow.funding_failed"
	EventLateFundingRefunded = "escrow.late_funding_refunded"
)

type TransactionCreatedEvent struct {
	TransactionID  string    `json:"transactionId"`
	ListingID      string    `json:"listingId"`
	BuyerID        string    `json:"buyerId"`
	SellerID       string    `json:"sellerId"`
	AgreedPriceGhs string    `json:"agreedPriceGhs"`
	Milestones     int       `json:"milestones"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type StatusChangedEvent struct {
	TransactionID string        `json:"transactionId"`
	ListingID     string        `json:"listingId"`
	BuyerID       string        `json:"buyerId"`
	SellerID      string        `json:"sellerId"`
	FromStatus    models.Status `json:"fromStatus"`
	ToStatus      models.Status `json:"toStatus"`
	Action        string        `json:"action"`
	ActorID       string        `json:"actorId"`
	ActorRole     models.Role   `json:"actorRole"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

type MilestoneApprovedEvent struct {
	TransactionID string      `json:"transactionId"`
	MilestoneID   string      `json:"milestoneId"`
	Name          string      `json:"name"`
	ApprovedBy    models.Role `json:"approvedBy"`
	Completed     bool        `json:"completed"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

type FundingFailedEvent struct {
	TransactionID string        `json:"transactionId"`
	PaymentID     string        `json:"paymentId"`
	Reference     string        `json:"reference"`
	Status        models.Status `json:"status"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

// LateFundingRefundedEvent is raised when a funding confirmation arrives for a
// transaction that had already closed and the money went straight back to the buyer.
type LateFundingRefundedEvent struct {
	TransactionID    string        `json:"transactionId"`
	FundingReference string        `json:"fundingReference"`
	RefundReference  string        `json:"refundReference"`
	AmountGhs        string        `json:"amountGhs"`
	Status           models.Status `json:"status"`
	OccurredAt       time.Time     `json:"occurredAt"`
}

func newEvent(aggregateID, eventType string, payload any) (*models.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return models.NewOutboxEvent(aggregateID, eventType, body), nil
}
