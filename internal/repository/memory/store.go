package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/honeynil/LandEscrowService/internal/models"
	"github.com/honeynil/LandEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

// Store is an in-memory implementation of the escrow, directory and outbox
// repositories. It backs local runs with STORAGE=memory and the service tests.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]*models.Transaction
	history      map[string][]models.StatusChange
	locks        map[string]*sync.Mutex
	listings     map[string]models.ListingSummary
	users        map[string]models.UserSummary
	outbox       []*models.OutboxEvent
	nextChangeID int64
	now          func() time.Time
}

var (
	_ repository.EscrowRepository    = (*Store)(nil)
	_ repository.DirectoryRepository = (*Store)(nil)
	_ repository.OutboxRepository    = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*models.Transaction),
		history:      make(map[string][]models.StatusChange),
		locks:        make(map[string]*sync.Mutex),
		listings:     make(map[string]models.ListingSummary),
		users:        make(map[string]models.UserSummary),
		now:          time.Now,
	}
}

// WithClock replaces the clock used for outbox claims.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// PutListing seeds a listing the store will report as existing.
func (s *Store) PutListing(l models.ListingSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

// PutUser seeds a user summary.
func (s *Store) PutUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) Create(_ context.Context, tx *models.Transaction, events ...*models.OutboxEvent) error {
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return fmt.Errorf("failed to create transaction: duplicate id %s", tx.ID)
	}
	s.transactions[tx.ID] = tx.Clone()
	s.locks[tx.ID] = &sync.Mutex{}
	s.appendHistory(models.StatusChange{
		TransactionID: tx.ID,
		ToStatus:      tx.Status,
		Action:        "create",
		CreatedAt:     tx.CreatedAt,
	})
	for _, evt := range events {
		s.outbox = append(s.outbox, cloneEvent(evt))
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (s *Store) Version(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return 0, pkgerrors.ErrTransactionNotFound
	}
	return tx.Version, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Transaction{}
	for _, tx := range s.transactions {
		if tx.BuyerID == userID || tx.SellerID == userID {
			result = append(result, *tx.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) History(_ context.Context, id string) ([]models.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StatusChange{}, s.history[id]...), nil
}

func (s *Store) FindTransactionIDByPaymentReference(_ context.Context, reference string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, tx := range s.transactions {
		if reference != "" && tx.FindPaymentByReference(reference) != nil {
			return id, nil
		}
	}
	return "", pkgerrors.ErrPaymentNotFound
}

// WithLock serialises callers per transaction. fn works on a private copy and its
// writes are published only when it returns nil.
func (s *Store) WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx *models.Transaction, w repository.EscrowTx) error) error {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored := s.transactions[id]
	s.mu.RUnlock()

	w := &stagedTx{work: stored.Clone()}
	if err := fn(ctx, stored.Clone(), w); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[id] = w.work
	for _, c := range w.changes {
		s.appendHistory(c)
	}
	s.outbox = append(s.outbox, w.events...)
	return nil
}

// appendHistory must be called with s.mu held.
func (s *Store) appendHistory(c models.StatusChange) {
	s.nextChangeID++
	c.ID = s.nextChangeID
	s.history[c.TransactionID] = append(s.history[c.TransactionID], c)
}

func (s *Store) GetListing(_ context.Context, id string) (*models.ListingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, pkgerrors.ErrListingNotFound
	}
	return &l, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return &u, nil
}

// FetchPending claims pending events and events whose claim is older than ClaimLease.
func (s *Store) FetchPending(_ context.Context, limit int) ([]*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var batch []*models.OutboxEvent
	for _, evt := range s.outbox {
		if len(batch) == limit {
			break
		}
		expired := evt.Status == models.OutboxProcessing && evt.ClaimedAt != nil && now.Sub(*evt.ClaimedAt) >= ClaimLease
		if evt.Status == models.OutboxPending || expired {
			at := now
			evt.Status = models.OutboxProcessing
			evt.ClaimedAt = &at
			batch = append(batch, cloneEvent(evt))
		}
	}
	return batch, nil
}

func (s *Store) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.outbox {
		if evt.ID == id {
			now := s.now().UTC()
			evt.Status = models.OutboxProcessed
			evt.ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

func (s *Store) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.outbox {
		if evt.ID == id {
			evt.Attempts++
			evt.ClaimedAt = nil
			evt.Status = models.OutboxPending
			if evt.Attempts >= MaxAttempts {
				evt.Status = models.OutboxFailed
			}
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

// MaxAttempts and ClaimLease mirror the Postgres outbox settings.
const (
	MaxAttempts = 5
	ClaimLease  = 5 * time.Minute
)

// Events returns a snapshot of every outbox row, oldest first.
func (s *Store) Events() []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OutboxEvent, 0, len(s.outbox))
	for _, evt := range s.outbox {
		out = append(out, *cloneEvent(evt))
	}
	return out
}

func cloneEvent(evt *models.OutboxEvent) *models.OutboxEvent {
	c := *evt
	c.Payload = append([]byte(nil), evt.Payload...)
	c.ClaimedAt = copyTime(evt.ClaimedAt)
	c.ProcessedAt = copyTime(evt.ProcessedAt)
	return &c
}
