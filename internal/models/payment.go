package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentFunding PaymentType = "TRANSACTION_FUNDING"
	PaymentRelease PaymentType = "RELEASE"
	PaymentRefund  PaymentType = "REFUND"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type Payment struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	Type          PaymentType     `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status"`
	Reference     string          `json:"reference,omitempty"`
	PaymentURL    string          `json:"paymentUrl,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (t *Transaction) PendingFunding() *Payment {
	for i := range t.Payments {
		p := &t.Payments[i]
		if p.Type == PaymentFunding && p.Status == PaymentPending {
			return p
		}
	}
	return nil
}

func (t *Transaction) FindPaymentByReference(ref string) *Payment {
	for i := range t.Payments {
		if t.Payments[i].Reference == ref {
			return &t.Payments[i]
		}
	}
	return nil
}

// FundingAttempts counts the funding payments started so far, declined ones included.
func (t *Transaction) FundingAttempts() int {
	n := 0
	for i := range t.Payments {
		if t.Payments[i].Type == PaymentFunding {
			n++
		}
	}
	return n
}
