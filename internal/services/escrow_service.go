package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/honeynil/LandEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/payment"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/LandEscrowService/internal/lifecycle"
	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "escrow-service"

type EscrowService interface {
	Create(ctx context.Context, actor models.Actor, in models.NewTransactionInput) (*models.TransactionView, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.TransactionView, error)
	List(ctx context.Context, actor models.Actor) ([]models.Transaction, error)
	History(ctx context.Context, actor models.Actor, id string) ([]models.StatusChange, error)
	ApplyTransition(ctx context.Context, actor models.Actor, id string, action lifecycle.Action, opts TransitionOptions) (*models.TransactionView, error)
	ApproveMilestone(ctx context.Context, actor models.Actor, txID, milestoneID string) (*MilestoneApproval, error)
	ConfirmFunding(ctx context.Context, paymentRef string) error
	FailFunding(ctx context.Context, paymentRef string) error
	InitiateFunding(ctx context.Context, actor models.Actor, txID string, paymentType models.PaymentType, amount decimal.Decimal) (*FundingResponse, error)
}

type TransitionOptions struct {
	Reason      string
	MilestoneID string
}

type MilestoneApproval struct {
	Milestone         models.Milestone `json:"milestone"`
	TransactionStatus models.Status    `json:"transactionStatus"`
}

type FundingResponse struct {
	PaymentURL string        `json:"paymentUrl"`
	Reference  string        `json:"reference"`
	Status     models.Status `json:"status"`
}

type Options struct {
	EnforceMilestoneTotal bool
	CacheTTL              time.Duration
	Now                   func() time.Time
}

type escrowService struct {
	repo        repository.EscrowRepository
	directory   repository.DirectoryRepository
	gateway     payment.Gateway
	redisClient redis.RedisClient
	opts        Options
}

func NewEscrowService(
	repo repository.EscrowRepository,
	directory repository.DirectoryRepository,
	gateway payment.Gateway,
	redisClient redis.RedisClient,
	opts Options,
) *escrowService {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &escrowService{
		repo:        repo,
		directory:   directory,
		gateway:     gateway,
		redisClient: redisClient,
		opts:        opts,
	}
}

// cacheKey includes the version, so an entry only ever holds the view of that version.
func cacheKey(id string, version int) string {
	return fmt.Sprintf("escrow:%s:v%d", id, version)
}

func (s *escrowService) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *escrowService) Create(ctx context.Context, actor models.Actor, in models.NewTransactionInput) (*models.TransactionView, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Create")
	defer span.End()

	if actor.UserID == "" || (!actor.Admin && actor.UserID != in.BuyerID && actor.UserID != in.SellerID) {
		return nil, s.reject(span, "Create", fmt.Errorf("%w: only the buyer, the seller or an admin may open an escrow", pkgerrors.ErrPermissionDenied))
	}

	listing, err := s.directory.GetListing(ctx, in.ListingID)
	if err != nil {
		slog.Error("failed to load listing", "method", "Create", "listing_id", in.ListingID, "error", err)
		return nil, s.reject(span, "Create", err)
	}
	if listing.Status != models.ListingActive {
		return nil, s.reject(span, "Create", fmt.Errorf("%w: listing %s is %s", pkgerrors.ErrListingUnavailable, listing.ID, listing.Status))
	}
	if listing.SellerID != in.SellerID {
		return nil, s.reject(span, "Create", fmt.Errorf("%w: seller does not own the listing", pkgerrors.ErrInvalidInput))
	}

	tx, err := models.NewTransaction(in, s.opts.EnforceMilestoneTotal, s.now())
	if err != nil {
		return nil, s.reject(span, "Create", err)
	}
	span.SetAttributes(attribute.String("transaction_id", tx.ID))

	evt, err := newEvent(tx.ID, EventTransactionCreated, TransactionCreatedEvent{
		TransactionID:  tx.ID,
		ListingID:      tx.ListingID,
		BuyerID:        tx.BuyerID,
		SellerID:       tx.SellerID,
		AgreedPriceGhs: tx.AgreedPriceGhs.StringFixed(2),
		Milestones:     len(tx.Milestones),
		OccurredAt:     tx.CreatedAt,
	})
	if err != nil {
		return nil, s.reject(span, "Create", fmt.Errorf("failed to marshal event: %w", err))
	}

	if err := s.repo.Create(ctx, tx, evt); err != nil {
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return nil, s.reject(span, "Create", err)
	}
	observability.EscrowTransitions.WithLabelValues("create", string(tx.Status)).Inc()

	slog.Info("escrow transaction created",
		"transaction_id", tx.ID,
		"listing_id", tx.ListingID,
		"actor_id", actor.UserID,
		"agreed_price_ghs", tx.AgreedPriceGhs.StringFixed(2))

	view := s.buildView(ctx, tx)
	s.decorate(view, s.roleFor(actor, tx))
	return view, nil
}

// Get returns the transaction as seen by the actor. Parties other than the buyer, the
// seller and admins are told it does not exist.
func (s *escrowService) Get(ctx context.Context, actor models.Actor, id string) (*models.TransactionView, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Get")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", id))

	view, err := s.loadView(ctx, id)
	if err != nil {
		return nil, s.reject(span, "Get", err)
	}
	role := s.roleFor(actor, view.Transaction)
	if role == models.RoleNone {
		return nil, s.reject(span, "Get", pkgerrors.ErrTransactionNotFound)
	}
	s.decorate(view, role)
	return view, nil
}

func (s *escrowService) loadView(ctx context.Context, id string) (*models.TransactionView, error) {
	version, err := s.repo.Version(ctx, id)
	if err != nil {
		return nil, err
	}
	cached, err := s.redisClient.Get(ctx, cacheKey(id, version))
	if err == nil {
		var view models.TransactionView
		if err := json.Unmarshal([]byte(cached), &view); err == nil && view.Transaction != nil {
			slog.Debug("transaction fetched from Redis", "transaction_id", id)
			return &view, nil
		}
		slog.Error("failed to unmarshal cached transaction", "transaction_id", id, "error", err)
	} else if !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Error("failed to read transaction cache", "transaction_id", id, "error", err)
	}

	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.buildView(ctx, tx)

	if body, err := json.Marshal(view); err != nil {
		slog.Error("failed to marshal transaction", "transaction_id", id, "error", err)
	} else if err := s.redisClient.Set(ctx, cacheKey(id, tx.Version), string(body), s.opts.CacheTTL); err != nil {
		slog.Error("failed to cache transaction", "transaction_id", id, "error", err)
	}
	return view, nil
}

func (s *escrowService) buildView(ctx context.Context, tx *models.Transaction) *models.TransactionView {
	view := &models.TransactionView{
		Transaction:  tx,
		Fee:          tx.FeeGhs().StringFixed(2),
		SellerPayout: tx.SellerPayoutGhs().StringFixed(2),
	}
	if buyer, err := s.directory.GetUser(ctx, tx.BuyerID); err == nil {
		view.Buyer = buyer
	} else {
		slog.Warn("buyer summary unavailable", "transaction_id", tx.ID, "user_id", tx.BuyerID, "error", err)
	}
	if seller, err := s.directory.GetUser(ctx, tx.SellerID); err == nil {
		view.Seller = seller
	} else {
		slog.Warn("seller summary unavailable", "transaction_id", tx.ID, "user_id", tx.SellerID, "error", err)
	}
	if listing, err := s.directory.GetListing(ctx, tx.ListingID); err == nil {
		view.Listing = listing
	} else {
		slog.Warn("listing summary unavailable", "transaction_id", tx.ID, "listing_id", tx.ListingID, "error", err)
	}
	return view
}

func (s *escrowService) decorate(view *models.TransactionView, role models.Role) {
	view.AvailableActions = nil
	for _, a := range lifecycle.Available(view.Transaction, role) {
		view.AvailableActions = append(view.AvailableActions, string(a))
	}
}

func (s *escrowService) List(ctx context.Context, actor models.Actor) ([]models.Transaction, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "List")
	defer span.End()

	transactions, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		slog.Error("failed to list transactions", "user_id", actor.UserID, "error", err)
		return nil, s.reject(span, "List", err)
	}

	slog.Info("transactions listed", "user_id", actor.UserID, "count", len(transactions))
	return transactions, nil
}

func (s *escrowService) History(ctx context.Context, actor models.Actor, id string) ([]models.StatusChange, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "History")
	defer span.End()

	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject(span, "History", err)
	}
	if s.roleFor(actor, tx) == models.RoleNone {
		return nil, s.reject(span, "History", pkgerrors.ErrTransactionNotFound)
	}

	history, err := s.repo.History(ctx, id)
	if err != nil {
		slog.Error("failed to get history", "transaction_id", id, "error", err)
		return nil, s.reject(span, "History", err)
	}
	return history, nil
}

func (s *escrowService) roleFor(actor models.Actor, tx *models.Transaction) models.Role {
	if actor.IsSystem() {
		return models.RoleSystem
	}
	return tx.RoleOf(actor.UserID, actor.Admin)
}

// invalidate drops the view cached for a version that has just been superseded.
func (s *escrowService) invalidate(ctx context.Context, id string, version int) {
	if err := s.redisClient.Del(ctx, cacheKey(id, version)); err != nil {
		slog.Error("failed to invalidate transaction cache", "transaction_id", id, "error", err)
	}
}

// reject records a failed operation on the span and in metrics and returns err.
func (s *escrowService) reject(span trace.Span, operation string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	observability.EscrowRejections.WithLabelValues(operation, reason(err)).Inc()
	return err
}

func reason(err error) string {
	switch {
	case stderrors.Is(err, pkgerrors.ErrTransactionNotFound),
		stderrors.Is(err, pkgerrors.ErrMilestoneNotFound),
		stderrors.Is(err, pkgerrors.ErrListingNotFound),
		stderrors.Is(err, pkgerrors.ErrPaymentNotFound),
		stderrors.Is(err, pkgerrors.ErrDisputeNotFound):
		return "not_found"
	case stderrors.Is(err, pkgerrors.ErrPermissionDenied):
		return "permission_denied"
	case stderrors.Is(err, pkgerrors.ErrIllegalTransition):
		return "illegal_transition"
	case stderrors.Is(err, pkgerrors.ErrInvalidState):
		return "invalid_state"
	case stderrors.Is(err, pkgerrors.ErrAlreadyApproved):
		return "already_approved"
	case stderrors.Is(err, pkgerrors.ErrExternalService):
		return "external_service"
	case stderrors.Is(err, pkgerrors.ErrConcurrentUpdate):
		return "conflict"
	case stderrors.Is(err, pkgerrors.ErrInvalidInput),
		stderrors.Is(err, pkgerrors.ErrListingUnavailable),
		stderrors.Is(err, pkgerrors.ErrUnknownAction):
		return "invalid_input"
	default:
		return "internal"
	}
}
