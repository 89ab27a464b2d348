//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

//
// ---------------- in-memory store with transaction semantics ----------------
//
// memStore backs all repository mocks. WithTx snapshots the whole store and
// restores it when the closure fails, which mirrors what a rolled-back
// database transaction does to the real repositories.
//

type memStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	gens     map[string]*model.Generation
	keys     map[string]string // userID|key -> generation ID
	txns     []*model.Transaction
	payments map[string]*model.Payment
	payKeys  map[string]string
	pricing  map[string]*model.ModelPricing
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*model.User{},
		gens:     map[string]*model.Generation{},
		keys:     map[string]string{},
		payments: map[string]*model.Payment{},
		payKeys:  map[string]string{},
		pricing:  map[string]*model.ModelPricing{},
	}
}

func keyFor(userID int64, key string) string {
	return fmt.Sprintf("%d|%s", userID, key)
}

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range s.users {
		u := *v
		cp.users[k] = &u
	}
	for k, v := range s.gens {
		g := *v
		cp.gens[k] = &g
	}
	for k, v := range s.keys {
		cp.keys[k] = v
	}
	cp.txns = append(cp.txns, s.txns...)
	for k, v := range s.payments {
		p := *v
		cp.payments[k] = &p
	}
	for k, v := range s.payKeys {
		cp.payKeys[k] = v
	}
	for k, v := range s.pricing {
		p := *v
		cp.pricing[k] = &p
	}
	return cp
}

func (s *memStore) restore(cp *memStore) {
	s.users = cp.users
	s.gens = cp.gens
	s.keys = cp.keys
	s.txns = cp.txns
	s.payments = cp.payments
	s.payKeys = cp.payKeys
	s.pricing = cp.pricing
}

// inTx marks an executing transaction; repo calls with this tx value skip
// re-locking the store mutex.
type inTx struct{}

type mockTxManager struct{ store *memStore }

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	snap := m.store.snapshot()
	if err := fn(ctx, inTx{}); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// lock acquires the store mutex unless already inside a transaction.
func (s *memStore) lock(tx repository.Tx) func() {
	if _, ok := tx.(inTx); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

//
// -------------------- user repository --------------------
//

type memUserRepo struct{ store *memStore }

func (r *memUserRepo) Save(_ context.Context, tx repository.Tx, u *model.User) error {
	defer r.store.lock(tx)()
	cp := *u
	r.store.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, tx repository.Tx, id int64) (*model.User, error) {
	defer r.store.lock(tx)()
	u, ok := r.store.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) CountUsers(_ context.Context, tx repository.Tx) (int, error) {
	defer r.store.lock(tx)()
	return len(r.store.users), nil
}

func (r *memUserRepo) LockUser(_ context.Context, _ repository.Tx, _ int64) error { return nil }

func (r *memUserRepo) DebitCredits(_ context.Context, tx repository.Tx, userID, amount int64) (int64, error) {
	defer r.store.lock(tx)()
	u, ok := r.store.users[userID]
	if !ok || u.Credits < amount {
		return 0, domain.ErrInsufficientCredits
	}
	u.Credits -= amount
	u.TotalSpentCredits += amount
	u.TotalGenerations++
	return u.Credits, nil
}

func (r *memUserRepo) CreditCredits(_ context.Context, tx repository.Tx, userID, amount int64) (int64, error) {
	defer r.store.lock(tx)()
	u, ok := r.store.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	u.Credits += amount
	return u.Credits, nil
}

//
// -------------------- generation repository --------------------
//

type memGenerationRepo struct{ store *memStore }

func (r *memGenerationRepo) Create(_ context.Context, tx repository.Tx, g *model.Generation) error {
	defer r.store.lock(tx)()
	if g.IdempotencyKey != nil {
		k := keyFor(g.UserID, *g.IdempotencyKey)
		if _, dup := r.store.keys[k]; dup {
			return domain.ErrDuplicateRequest
		}
		r.store.keys[k] = g.ID
	}
	cp := *g
	r.store.gens[g.ID] = &cp
	return nil
}

func (r *memGenerationRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Generation, error) {
	defer r.store.lock(tx)()
	g, ok := r.store.gens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGenerationRepo) FindByUserAndKey(_ context.Context, tx repository.Tx, userID int64, key string) (*model.Generation, error) {
	defer r.store.lock(tx)()
	id, ok := r.store.keys[keyFor(userID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	g := *r.store.gens[id]
	return &g, nil
}

func (r *memGenerationRepo) FindByExternalTaskID(_ context.Context, tx repository.Tx, taskID string) (*model.Generation, error) {
	defer r.store.lock(tx)()
	for _, g := range r.store.gens {
		if g.ExternalTaskID == taskID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memGenerationRepo) ListByUser(_ context.Context, tx repository.Tx, userID int64, limit, offset int) ([]*model.Generation, error) {
	defer r.store.lock(tx)()
	var out []*model.Generation
	for _, g := range r.store.gens {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memGenerationRepo) CountActive(_ context.Context, tx repository.Tx, userID int64) (int, error) {
	defer r.store.lock(tx)()
	n := 0
	for _, g := range r.store.gens {
		if g.UserID == userID && g.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *memGenerationRepo) CountCreatedSince(_ context.Context, tx repository.Tx, userID int64, since time.Time) (int, error) {
	defer r.store.lock(tx)()
	n := 0
	for _, g := range r.store.gens {
		if g.UserID == userID && !g.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memGenerationRepo) MarkProcessing(_ context.Context, tx repository.Tx, id, externalTaskID string) (bool, error) {
	defer r.store.lock(tx)()
	g, ok := r.store.gens[id]
	if !ok || g.Status != model.GenerationStatusPending {
		return false, nil
	}
	now := time.Now()
	g.Status = model.GenerationStatusProcessing
	g.ExternalTaskID = externalTaskID
	g.StartedAt = &now
	return true, nil
}

func (r *memGenerationRepo) MarkCompleted(_ context.Context, tx repository.Tx, id, resultURL string) (bool, error) {
	defer r.store.lock(tx)()
	g, ok := r.store.gens[id]
	if !ok || g.Status != model.GenerationStatusProcessing {
		return false, nil
	}
	now := time.Now()
	g.Status = model.GenerationStatusCompleted
	g.ResultURL = resultURL
	g.CompletedAt = &now
	return true, nil
}

func (r *memGenerationRepo) MarkTerminated(_ context.Context, tx repository.Tx, id string, status model.GenerationStatus, errMsg string) (bool, error) {
	defer r.store.lock(tx)()
	if status != model.GenerationStatusFailed && status != model.GenerationStatusCancelled {
		return false, domain.ErrInvalidArgument
	}
	g, ok := r.store.gens[id]
	if !ok || !g.Status.IsActive() {
		return false, nil
	}
	now := time.Now()
	g.Status = status
	g.ErrorMessage = errMsg
	g.CompletedAt = &now
	return true, nil
}

func (r *memGenerationRepo) MarkRefunded(_ context.Context, tx repository.Tx, id string) (bool, error) {
	defer r.store.lock(tx)()
	g, ok := r.store.gens[id]
	if !ok || g.Refunded {
		return false, nil
	}
	g.Refunded = true
	return true, nil
}

func (r *memGenerationRepo) ListExpiredActive(_ context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Generation, error) {
	defer r.store.lock(tx)()
	var out []*model.Generation
	for _, g := range r.store.gens {
		if g.Status.IsActive() && g.TimeoutAt.Before(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memGenerationRepo) ClearIdempotencyKeysBefore(_ context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	defer r.store.lock(tx)()
	var n int64
	for _, g := range r.store.gens {
		if g.IdempotencyKey != nil && g.CreatedAt.Before(cutoff) {
			delete(r.store.keys, keyFor(g.UserID, *g.IdempotencyKey))
			g.IdempotencyKey = nil
			n++
		}
	}
	return n, nil
}

//
// -------------------- transaction repository --------------------
//

type memTxnRepo struct{ store *memStore }

func (r *memTxnRepo) Save(_ context.Context, tx repository.Tx, t *model.Transaction) error {
	defer r.store.lock(tx)()
	cp := *t
	r.store.txns = append(r.store.txns, &cp)
	return nil
}

func (r *memTxnRepo) ListByUser(_ context.Context, tx repository.Tx, userID int64, limit, offset int) ([]*model.Transaction, error) {
	defer r.store.lock(tx)()
	var out []*model.Transaction
	for _, t := range r.store.txns {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

//
// -------------------- payment repository --------------------
//

type memPaymentRepo struct{ store *memStore }

func (r *memPaymentRepo) Save(_ context.Context, tx repository.Tx, p *model.Payment) error {
	defer r.store.lock(tx)()
	if p.IdempotencyKey != nil {
		if _, dup := r.store.payKeys[*p.IdempotencyKey]; dup {
			return domain.ErrDuplicateRequest
		}
		r.store.payKeys[*p.IdempotencyKey] = p.ID
	}
	cp := *p
	r.store.payments[p.ID] = &cp
	return nil
}

func (r *memPaymentRepo) FindByID(_ context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	defer r.store.lock(tx)()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) FindByKey(_ context.Context, tx repository.Tx, key string) (*model.Payment, error) {
	defer r.store.lock(tx)()
	for _, p := range r.store.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) ListPending(_ context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	defer r.store.lock(tx)()
	var out []*model.Payment
	for _, p := range r.store.payments {
		if p.Status == model.PaymentStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) MarkProcessed(_ context.Context, tx repository.Tx, id string, status model.PaymentStatus, adminID int64, note string, at time.Time) (bool, error) {
	defer r.store.lock(tx)()
	p, ok := r.store.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.AdminID = &adminID
	p.AdminMessage = note
	p.ProcessedAt = &at
	p.UpdatedAt = at
	return true, nil
}

//
// -------------------- pricing repository --------------------
//

type memPricingRepo struct{ store *memStore }

func (r *memPricingRepo) GetByModelID(_ context.Context, tx repository.Tx, modelID string) (*model.ModelPricing, error) {
	defer r.store.lock(tx)()
	p, ok := r.store.pricing[modelID]
	if !ok || !p.Active {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPricingRepo) Save(_ context.Context, tx repository.Tx, p *model.ModelPricing) error {
	defer r.store.lock(tx)()
	cp := *p
	r.store.pricing[p.ModelID] = &cp
	return nil
}

func (r *memPricingRepo) ListActive(_ context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	defer r.store.lock(tx)()
	var out []*model.ModelPricing
	for _, p := range r.store.pricing {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}
