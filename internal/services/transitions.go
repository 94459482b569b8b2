package service

import (
	"context"
	"fmt"
	"log/slog"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/payment"
	"github.com/honeynil/LandEscrowService/internal/lifecycle"
	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// unit collects what one locked operation applied so it can be reported after commit.
type unit struct {
	actor   models.Actor
	role    models.Role
	version int
	changes []models.StatusChange
}

// ApplyTransition runs a user action against the transaction under its row lock. Any
// failure, including a failed gateway call, leaves the stored transaction untouched.
func (s *escrowService) ApplyTransition(ctx context.Context, actor models.Actor, id string, action lifecycle.Action, opts TransitionOptions) (*models.TransactionView, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApplyTransition")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", id), attribute.String("action", string(action)))

	if action == lifecycle.ActionApproveMilestone {
		if opts.MilestoneID == "" {
			return nil, s.reject(span, "ApplyTransition", fmt.Errorf("%w: milestoneId is required for %s", pkgerrors.ErrInvalidInput, action))
		}
		if _, err := s.ApproveMilestone(ctx, actor, id, opts.MilestoneID); err != nil {
			return nil, err
		}
		return s.Get(ctx, actor, id)
	}

	u := &unit{actor: actor}
	var result *models.Transaction
	err := s.repo.WithLock(ctx, id, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
		u.role = s.roleFor(actor, tx)
		u.version = tx.Version
		if u.role == models.RoleNone {
			return pkgerrors.ErrTransactionNotFound
		}
		if action == lifecycle.ActionFund {
			if _, err := s.fund(ctx, tx, w, u); err != nil {
				return err
			}
			if err := s.runAutomatic(ctx, tx, w, u); err != nil {
				return err
			}
			result = tx
			return nil
		}

		to, err := lifecycle.Plan(tx.Status, action, u.role)
		if err != nil {
			return err
		}

		switch action {
		case lifecycle.ActionDispute:
			if err := s.openDispute(ctx, tx, w, actor, opts.Reason); err != nil {
				return err
			}
			if err := s.advance(ctx, tx, w, u, action, to); err != nil {
				return err
			}
		case lifecycle.ActionRelease, lifecycle.ActionRefund:
			if err := s.settle(ctx, tx, w, to); err != nil {
				return err
			}
			if err := s.closeDisputes(ctx, tx, w, models.DisputeResolved); err != nil {
				return err
			}
			if err := s.advance(ctx, tx, w, u, action, to); err != nil {
				return err
			}
		case lifecycle.ActionReinstate, lifecycle.ActionClose:
			if err := s.closeDisputes(ctx, tx, w, models.DisputeDismissed); err != nil {
				return err
			}
			if err := s.advance(ctx, tx, w, u, action, to); err != nil {
				return err
			}
		default:
			if err := s.advance(ctx, tx, w, u, action, to); err != nil {
				return err
			}
		}

		if err := s.runAutomatic(ctx, tx, w, u); err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		slog.Warn("transition rejected",
			"transaction_id", id,
			"action", action,
			"actor_id", actor.UserID,
			"error", err)
		return nil, s.reject(span, "ApplyTransition", err)
	}

	s.committed(ctx, id, u)
	view := s.buildView(ctx, result)
	s.decorate(view, u.role)
	return view, nil
}

// InitiateFunding starts, or resumes, the buyer's funding payment. A transaction that
// already has a pending funding payment gets the same payment back; one whose last
// payment was declined gets a new one.
func (s *escrowService) InitiateFunding(ctx context.Context, actor models.Actor, txID string, paymentType models.PaymentType, amount decimal.Decimal) (*FundingResponse, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "InitiateFunding")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", txID))

	if paymentType != models.PaymentFunding {
		return nil, s.reject(span, "InitiateFunding", fmt.Errorf("%w: %q", pkgerrors.ErrUnsupportedPaymentType, paymentType))
	}

	u := &unit{actor: actor}
	var resp FundingResponse
	err := s.repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
		u.role = s.roleFor(actor, tx)
		u.version = tx.Version
		if u.role == models.RoleNone {
			return pkgerrors.ErrTransactionNotFound
		}
		if u.role != models.RoleBuyer {
			return errBuyerFunds
		}
		if !amount.Equal(tx.AgreedPriceGhs) {
			return fmt.Errorf("%w: expected %s GHS", pkgerrors.ErrFundingAmountMismatch, tx.AgreedPriceGhs.StringFixed(2))
		}

		if tx.Status == models.StatusEscrowRequested {
			if p := tx.PendingFunding(); p != nil {
				resp = FundingResponse{PaymentURL: p.PaymentURL, Reference: p.Reference, Status: tx.Status}
				return nil
			}
		}

		p, err := s.fund(ctx, tx, w, u)
		if err != nil {
			return err
		}
		resp = FundingResponse{PaymentURL: p.PaymentURL, Reference: p.Reference}
		if err := s.runAutomatic(ctx, tx, w, u); err != nil {
			return err
		}
		resp.Status = tx.Status
		return nil
	})
	if err != nil {
		slog.Error("failed to initiate funding", "transaction_id", txID, "actor_id", actor.UserID, "error", err)
		return nil, s.reject(span, "InitiateFunding", err)
	}

	s.committed(ctx, txID, u)
	slog.Info("funding initiated", "transaction_id", txID, "reference", resp.Reference, "status", resp.Status)
	return &resp, nil
}

// ConfirmFunding applies the gateway's confirmation of a funding payment. Repeated
// confirmations of the same payment are accepted and change nothing. Funds captured
// after the transaction was closed are refunded to the buyer at once.
func (s *escrowService) ConfirmFunding(ctx context.Context, paymentRef string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ConfirmFunding")
	defer span.End()
	span.SetAttributes(attribute.String("payment_reference", paymentRef))

	txID, err := s.repo.FindTransactionIDByPaymentReference(ctx, paymentRef)
	if err != nil {
		slog.Error("funding confirmation for unknown payment", "reference", paymentRef, "error", err)
		return s.reject(span, "ConfirmFunding", err)
	}

	u := &unit{actor: models.SystemActor, role: models.RoleSystem}
	var refund *models.Payment
	err = s.repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
		u.version = tx.Version
		p, err := fundingPayment(tx, paymentRef)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentConfirmed {
			return nil
		}
		if p.Status == models.PaymentFailed {
			return &pkgerrors.TransitionError{Action: string(lifecycle.ActionConfirmFunding), Current: string(tx.Status), Err: pkgerrors.ErrInvalidState}
		}

		p.Status = models.PaymentConfirmed
		p.UpdatedAt = s.now()
		if err := w.SavePayment(ctx, p); err != nil {
			return err
		}
		if tx.Status.Terminal() {
			refund, err = s.refundLateFunding(ctx, tx, w, p)
			return err
		}
		if err := s.confirm(ctx, tx, w, u); err != nil {
			return err
		}
		return s.runAutomatic(ctx, tx, w, u)
	})
	if err != nil {
		slog.Error("failed to confirm funding", "transaction_id", txID, "reference", paymentRef, "error", err)
		return s.reject(span, "ConfirmFunding", err)
	}

	s.committed(ctx, txID, u)
	switch {
	case refund != nil:
		slog.Warn("funding confirmed after close, refunded to buyer",
			"transaction_id", txID,
			"reference", paymentRef,
			"refund_reference", refund.Reference,
			"amount_ghs", refund.Amount.StringFixed(2))
	case len(u.changes) > 0:
		slog.Info("funding confirmed", "transaction_id", txID, "reference", paymentRef)
	}
	return nil
}

// FailFunding records the gateway's rejection of a funding payment. The transaction
// stays where it is and the buyer may start a new payment.
func (s *escrowService) FailFunding(ctx context.Context, paymentRef string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "FailFunding")
	defer span.End()
	span.SetAttributes(attribute.String("payment_reference", paymentRef))

	txID, err := s.repo.FindTransactionIDByPaymentReference(ctx, paymentRef)
	if err != nil {
		slog.Error("funding failure for unknown payment", "reference", paymentRef, "error", err)
		return s.reject(span, "FailFunding", err)
	}

	u := &unit{actor: models.SystemActor, role: models.RoleSystem}
	failed := false
	err = s.repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
		u.version = tx.Version
		p, err := fundingPayment(tx, paymentRef)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PaymentFailed:
			return nil
		case models.PaymentConfirmed:
			return fmt.Errorf("%w: payment %s is already confirmed", pkgerrors.ErrInvalidState, paymentRef)
		}

		now := s.now()
		p.Status = models.PaymentFailed
		p.UpdatedAt = now
		if err := w.SavePayment(ctx, p); err != nil {
			return err
		}
		evt, err := newEvent(tx.ID, EventFundingFailed, FundingFailedEvent{
			TransactionID: tx.ID,
			PaymentID:     p.ID,
			Reference:     p.Reference,
			Status:        tx.Status,
			OccurredAt:    now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := w.Enqueue(ctx, evt); err != nil {
			return err
		}
		failed = true
		return s.touch(ctx, tx, w)
	})
	if err != nil {
		slog.Error("failed to record funding failure", "transaction_id", txID, "reference", paymentRef, "error", err)
		return s.reject(span, "FailFunding", err)
	}

	s.committed(ctx, txID, u)
	if failed {
		slog.Warn("funding declined by gateway", "transaction_id", txID, "reference", paymentRef)
	}
	return nil
}

// ApproveMilestone records the actor's sign-off on a milestone. The milestone completes
// once both sides have approved, and the transaction moves to READY_TO_RELEASE when its
// last milestone completes.
func (s *escrowService) ApproveMilestone(ctx context.Context, actor models.Actor, txID, milestoneID string) (*MilestoneApproval, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ApproveMilestone")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", txID), attribute.String("milestone_id", milestoneID))

	u := &unit{actor: actor}
	var result MilestoneApproval
	err := s.repo.WithLock(ctx, txID, func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
		u.role = s.roleFor(actor, tx)
		u.version = tx.Version
		if u.role == models.RoleNone {
			return pkgerrors.ErrTransactionNotFound
		}
		m := tx.FindMilestone(milestoneID)
		if m == nil {
			return pkgerrors.ErrMilestoneNotFound
		}
		if u.role != models.RoleBuyer && u.role != models.RoleSeller {
			return fmt.Errorf("%w: milestones are approved by the buyer and the seller", pkgerrors.ErrPermissionDenied)
		}
		if tx.Status != models.StatusVerificationPeriod {
			return &pkgerrors.TransitionError{Action: string(lifecycle.ActionApproveMilestone), Current: string(tx.Status), Err: pkgerrors.ErrInvalidState}
		}
		if m.CompletedAt != nil || m.ApprovedBy(u.role) {
			return pkgerrors.ErrAlreadyApproved
		}

		now := s.now()
		if u.role == models.RoleBuyer {
			m.BuyerApprovedAt = &now
		} else {
			m.SellerApprovedAt = &now
		}
		if m.BuyerApprovedAt != nil && m.SellerApprovedAt != nil {
			m.CompletedAt = &now
		}
		if err := w.SaveMilestone(ctx, m); err != nil {
			return err
		}

		evt, err := newEvent(tx.ID, EventMilestoneApproved, MilestoneApprovedEvent{
			TransactionID: tx.ID,
			MilestoneID:   m.ID,
			Name:          m.Name,
			ApprovedBy:    u.role,
			Completed:     m.CompletedAt != nil,
			OccurredAt:    now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := w.Enqueue(ctx, evt); err != nil {
			return err
		}

		if err := s.runAutomatic(ctx, tx, w, u); err != nil {
			return err
		}
		if len(u.changes) == 0 {
			if err := s.touch(ctx, tx, w); err != nil {
				return err
			}
		}
		result = MilestoneApproval{Milestone: *m, TransactionStatus: tx.Status}
		return nil
	})
	if err != nil {
		slog.Warn("milestone approval rejected",
			"transaction_id", txID,
			"milestone_id", milestoneID,
			"actor_id", actor.UserID,
			"error", err)
		return nil, s.reject(span, "ApproveMilestone", err)
	}

	s.committed(ctx, txID, u)
	slog.Info("milestone approved",
		"transaction_id", txID,
		"milestone_id", milestoneID,
		"role", u.role,
		"completed", result.Milestone.CompletedAt != nil,
		"transaction_status", result.TransactionStatus)
	return &result, nil
}

// advance moves the transaction to the next status and records the change in the audit
// trail and the outbox.
func (s *escrowService) advance(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, u *unit, action lifecycle.Action, to models.Status) error {
	from := tx.Status
	now := s.now()
	tx.Status = to
	tx.UpdatedAt = now
	tx.ClosedAt = nil
	if to.Terminal() {
		tx.ClosedAt = &now
	}
	if err := w.SaveTransaction(ctx, tx); err != nil {
		return err
	}

	actorID, role := u.actor.UserID, u.role
	if action == lifecycle.ActionStartVerification || action == lifecycle.ActionPromote || action == lifecycle.ActionConfirmFunding {
		actorID, role = models.SystemActor.UserID, models.RoleSystem
	}
	change := models.StatusChange{
		TransactionID: tx.ID,
		FromStatus:    from,
		ToStatus:      to,
		Action:        string(action),
		ActorID:       actorID,
		ActorRole:     role,
		CreatedAt:     now,
	}
	if err := w.AppendStatusChange(ctx, &change); err != nil {
		return err
	}

	evt, err := newEvent(tx.ID, EventStatusChanged, StatusChangedEvent{
		TransactionID: tx.ID,
		ListingID:     tx.ListingID,
		BuyerID:       tx.BuyerID,
		SellerID:      tx.SellerID,
		FromStatus:    from,
		ToStatus:      to,
		Action:        string(action),
		ActorID:       actorID,
		ActorRole:     role,
		OccurredAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := w.Enqueue(ctx, evt); err != nil {
		return err
	}
	u.changes = append(u.changes, change)
	return nil
}

// runAutomatic applies system transitions until none is left.
func (s *escrowService) runAutomatic(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, u *unit) error {
	for {
		action, _, ok := lifecycle.Next(tx)
		if !ok {
			return nil
		}
		to, err := lifecycle.Plan(tx.Status, action, models.RoleSystem)
		if err != nil {
			return err
		}
		if err := s.advance(ctx, tx, w, u, action, to); err != nil {
			return err
		}
	}
}

func (s *escrowService) confirm(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, u *unit) error {
	to, err := lifecycle.Plan(tx.Status, lifecycle.ActionConfirmFunding, models.RoleSystem)
	if err != nil {
		return err
	}
	return s.advance(ctx, tx, w, u, lifecycle.ActionConfirmFunding, to)
}

// fund runs the buyer's fund action. From CREATED it opens a funding payment and moves
// the transaction to ESCROW_REQUESTED. In ESCROW_REQUESTED it is allowed only after the
// gateway declined the previous payment, and opens the next one.
func (s *escrowService) fund(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, u *unit) (*models.Payment, error) {
	retry := tx.Status == models.StatusEscrowRequested && tx.PendingFunding() == nil
	if retry && u.role != models.RoleBuyer {
		return nil, errBuyerFunds
	}
	var to models.Status
	if !retry {
		var err error
		if to, err = lifecycle.Plan(tx.Status, lifecycle.ActionFund, u.role); err != nil {
			return nil, err
		}
	}

	p, err := s.ensureFunding(ctx, tx, w)
	if err != nil {
		return nil, err
	}
	if retry {
		if err := s.touch(ctx, tx, w); err != nil {
			return nil, err
		}
	} else if err := s.advance(ctx, tx, w, u, lifecycle.ActionFund, to); err != nil {
		return nil, err
	}
	if p.Status == models.PaymentConfirmed {
		if err := s.confirm(ctx, tx, w, u); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ensureFunding returns the pending funding payment, asking the gateway for one when
// the transaction has none. Each new payment uses the next attempt's idempotency key.
func (s *escrowService) ensureFunding(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) (*models.Payment, error) {
	if p := tx.PendingFunding(); p != nil {
		return p, nil
	}

	res, err := s.gateway.InitiateFunding(ctx, payment.FundingRequest{
		TransactionID:  tx.ID,
		PayerID:        tx.BuyerID,
		Amount:         tx.AgreedPriceGhs,
		IdempotencyKey: payment.FundingKey(tx.ID, tx.FundingAttempts()+1),
	})
	if err != nil {
		return nil, externalErr(err)
	}

	now := s.now()
	p := models.Payment{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		Type:          models.PaymentFunding,
		Amount:        tx.AgreedPriceGhs,
		Status:        models.PaymentPending,
		Reference:     res.Reference,
		PaymentURL:    res.PaymentURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if res.Confirmed {
		p.Status = models.PaymentConfirmed
	}
	if err := w.AddPayment(ctx, &p); err != nil {
		return nil, err
	}
	tx.Payments = append(tx.Payments, p)
	return &tx.Payments[len(tx.Payments)-1], nil
}

// settle moves the escrowed funds for a release or refund. It runs before the status
// change is written, so a gateway failure aborts the whole transition.
func (s *escrowService) settle(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, to models.Status) error {
	if !lifecycle.Settles(to) {
		return nil
	}
	req := payment.SettlementRequest{TransactionID: tx.ID}
	if to == models.StatusRefunded {
		req.Kind = payment.SettlementRefund
		req.PayeeID = tx.BuyerID
		req.Amount = tx.AgreedPriceGhs
		req.Fee = decimal.Zero
	} else {
		req.Kind = payment.SettlementRelease
		req.PayeeID = tx.SellerID
		req.Amount = tx.SellerPayoutGhs()
		req.Fee = tx.FeeGhs()
	}
	_, err := s.payOut(ctx, tx, w, req)
	return err
}

// refundLateFunding returns a funding captured after the transaction reached a terminal
// status. The transaction keeps its status; the refund is recorded against it.
func (s *escrowService) refundLateFunding(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, funding *models.Payment) (*models.Payment, error) {
	refund, err := s.payOut(ctx, tx, w, payment.SettlementRequest{
		TransactionID: tx.ID,
		Kind:          payment.SettlementRefund,
		PayeeID:       tx.BuyerID,
		Amount:        funding.Amount,
		Fee:           decimal.Zero,
	})
	if err != nil {
		return nil, err
	}

	evt, err := newEvent(tx.ID, EventLateFundingRefunded, LateFundingRefundedEvent{
		TransactionID:    tx.ID,
		FundingReference: funding.Reference,
		RefundReference:  refund.Reference,
		AmountGhs:        refund.Amount.StringFixed(2),
		Status:           tx.Status,
		OccurredAt:       refund.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := w.Enqueue(ctx, evt); err != nil {
		return nil, err
	}
	return refund, s.touch(ctx, tx, w)
}

// payOut asks the gateway to settle req and records the confirmed payment.
func (s *escrowService) payOut(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, req payment.SettlementRequest) (*models.Payment, error) {
	req.IdempotencyKey = payment.SettlementKey(tx.ID, req.Kind)
	res, err := s.gateway.Settle(ctx, req)
	if err != nil {
		return nil, externalErr(err)
	}

	paymentType := models.PaymentRelease
	if req.Kind == payment.SettlementRefund {
		paymentType = models.PaymentRefund
	}
	now := s.now()
	p := models.Payment{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		Type:          paymentType,
		Amount:        req.Amount,
		Status:        models.PaymentConfirmed,
		Reference:     res.Reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.AddPayment(ctx, &p); err != nil {
		return nil, err
	}
	tx.Payments = append(tx.Payments, p)
	return &tx.Payments[len(tx.Payments)-1], nil
}

func (s *escrowService) openDispute(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, actor models.Actor, reason string) error {
	d := models.Dispute{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		RaisedBy:      actor.UserID,
		Reason:        reason,
		Status:        models.DisputeOpen,
		CreatedAt:     s.now(),
	}
	if err := w.AddDispute(ctx, &d); err != nil {
		return err
	}
	tx.Disputes = append(tx.Disputes, d)
	return nil
}

func (s *escrowService) closeDisputes(ctx context.Context, tx *models.Transaction, w repository.EscrowTx, status models.DisputeStatus) error {
	now := s.now()
	for _, d := range tx.OpenDisputes() {
		d.Status = status
		d.ResolvedAt = &now
		if err := w.SaveDispute(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// touch bumps the stored version for writes that leave the status unchanged. Cached
// views are keyed by version.
func (s *escrowService) touch(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error {
	tx.UpdatedAt = s.now()
	return w.SaveTransaction(ctx, tx)
}

// committed runs the post-commit bookkeeping for a locked operation.
func (s *escrowService) committed(ctx context.Context, id string, u *unit) {
	s.invalidate(ctx, id, u.version)
	for _, c := range u.changes {
		observability.EscrowTransitions.WithLabelValues(c.Action, string(c.ToStatus)).Inc()
		slog.Info("transaction status changed",
			"transaction_id", id,
			"from", c.FromStatus,
			"to", c.ToStatus,
			"action", c.Action,
			"actor_id", c.ActorID,
			"actor_role", c.ActorRole)
	}
}

var errBuyerFunds = fmt.Errorf("%w: only the buyer funds the escrow", pkgerrors.ErrPermissionDenied)

func fundingPayment(tx *models.Transaction, ref string) (*models.Payment, error) {
	p := tx.FindPaymentByReference(ref)
	if p == nil {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	if p.Type != models.PaymentFunding {
		return nil, fmt.Errorf("%w: %s is not a funding payment", pkgerrors.ErrUnsupportedPaymentType, ref)
	}
	return p, nil
}

func externalErr(err error) error {
	if stderrors.Is(err, pkgerrors.ErrExternalService) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrExternalService, err)
}
