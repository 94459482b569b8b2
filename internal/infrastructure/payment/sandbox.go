package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

// Sandbox is an in-process gateway for local runs and tests. Repeated calls with the
// same idempotency key return the first result.
type Sandbox struct {
	mu          sync.Mutex
	fundings    map[string]FundingResult
	settlements map[string]SettlementResult
	failSettle  error
	failFunding error
	settled     []SettlementRequest
	autoConfirm bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		fundings:    make(map[string]FundingResult),
		settlements: make(map[string]SettlementResult),
	}
}

// WithAutoConfirm makes fundings report as captured immediately.
func (s *Sandbox) WithAutoConfirm() *Sandbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoConfirm = true
	return s
}

// FailSettlements makes subsequent Settle calls fail with err; nil restores success.
func (s *Sandbox) FailSettlements(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSettle = err
}

func (s *Sandbox) FailFundings(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFunding = err
}

func (s *Sandbox) InitiateFunding(_ context.Context, req FundingRequest) (FundingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFunding != nil {
		return FundingResult{}, fmt.Errorf("%w: %v", pkgerrors.ErrExternalService, s.failFunding)
	}
	if res, ok := s.fundings[req.IdempotencyKey]; ok {
		return res, nil
	}
	ref := "SBX-" + uuid.NewString()
	res := FundingResult{
		Reference:  ref,
		PaymentURL: "https://sandbox.pay.local/checkout/" + ref,
		Confirmed:  s.autoConfirm,
	}
	s.fundings[req.IdempotencyKey] = res
	slog.Info("sandbox funding initiated", "transaction_id", req.TransactionID, "amount", req.Amount.StringFixed(2), "reference", ref)
	return res, nil
}

func (s *Sandbox) Settle(_ context.Context, req SettlementRequest) (SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSettle != nil {
		return SettlementResult{}, fmt.Errorf("%w: %v", pkgerrors.ErrExternalService, s.failSettle)
	}
	if res, ok := s.settlements[req.IdempotencyKey]; ok {
		return res, nil
	}
	res := SettlementResult{Reference: "SBX-" + uuid.NewString()}
	s.settlements[req.IdempotencyKey] = res
	s.settled = append(s.settled, req)
	slog.Info("sandbox settlement", "transaction_id", req.TransactionID, "kind", req.Kind, "amount", req.Amount.StringFixed(2), "fee", req.Fee.StringFixed(2))
	return res, nil
}

// Settlements returns a copy of every distinct settlement executed so far.
func (s *Sandbox) Settlements() []SettlementRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SettlementRequest(nil), s.settled...)
}
