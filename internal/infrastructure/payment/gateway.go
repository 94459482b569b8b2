// Package payment talks to the external payment gateway that holds escrowed funds.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const Currency = "GHS"

type SettlementKind string

const (
	SettlementRelease SettlementKind = "RELEASE"
	SettlementRefund  SettlementKind = "REFUND"
)

type FundingRequest struct {
	TransactionID  string          `json:"transactionId"`
	PayerID        string          `json:"payerId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"-"`
}

type FundingResult struct {
	Reference  string `json:"reference"`
	PaymentURL string `json:"paymentUrl"`
	// Confirmed is set when the gateway captured the funds synchronously and no
	// separate confirmation will follow.
	Confirmed bool `json:"confirmed"`
}

// SettlementRequest moves escrowed funds out: to the seller net of the platform fee on
// release, back to the buyer in full on refund.
type SettlementRequest struct {
	TransactionID  string          `json:"transactionId"`
	Kind           SettlementKind  `json:"kind"`
	PayeeID        string          `json:"payeeId"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"-"`
}

type SettlementResult struct {
	Reference string `json:"reference"`
}

// Gateway is implemented by the HTTP client and the sandbox.
type Gateway interface {
	InitiateFunding(ctx context.Context, req FundingRequest) (FundingResult, error)
	Settle(ctx context.Context, req SettlementRequest) (SettlementResult, error)
}

// FundingKey names one funding attempt. A declined attempt is followed by a new one
// under the next number, so the gateway never hands back the dead payment.
func FundingKey(txID string, attempt int) string {
	return fmt.Sprintf("%s:funding:%d", txID, attempt)
}

func SettlementKey(txID string, kind SettlementKind) string {
	if kind == SettlementRefund {
		return txID + ":refund"
	}
	return txID + ":release"
}
