//go:build !integration

package web_test

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/usecase"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// Stubs delegate to per-test function fields; a nil field means the handler
// under test is not expected to reach that call.

type stubGenUC struct {
	startFn    func(ctx context.Context, req usecase.StartRequest) (*model.Generation, int64, error)
	cancelFn   func(ctx context.Context, userID int64, id string) (*model.Generation, int64, error)
	statusFn   func(ctx context.Context, userID int64, id string) (*model.Generation, error)
	historyFn  func(ctx context.Context, userID int64, limit, offset int) ([]*model.Generation, error)
	findTaskFn func(ctx context.Context, taskID string) (*model.Generation, error)
	completeFn func(ctx context.Context, id, resultURL string) error
	failFn     func(ctx context.Context, id, errMsg string) error
}

func (s *stubGenUC) Start(ctx context.Context, req usecase.StartRequest) (*model.Generation, int64, error) {
	return s.startFn(ctx, req)
}

func (s *stubGenUC) BeginProcessing(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubGenUC) Complete(ctx context.Context, id, resultURL string) error {
	if s.completeFn == nil {
		return nil
	}
	return s.completeFn(ctx, id, resultURL)
}

func (s *stubGenUC) Fail(ctx context.Context, id, errMsg string) error {
	if s.failFn == nil {
		return nil
	}
	return s.failFn(ctx, id, errMsg)
}

func (s *stubGenUC) Cancel(ctx context.Context, userID int64, id string) (*model.Generation, int64, error) {
	return s.cancelFn(ctx, userID, id)
}

func (s *stubGenUC) Status(ctx context.Context, userID int64, id string) (*model.Generation, error) {
	return s.statusFn(ctx, userID, id)
}

func (s *stubGenUC) History(ctx context.Context, userID int64, limit, offset int) ([]*model.Generation, error) {
	return s.historyFn(ctx, userID, limit, offset)
}

func (s *stubGenUC) FindByTask(ctx context.Context, taskID string) (*model.Generation, error) {
	return s.findTaskFn(ctx, taskID)
}

func (s *stubGenUC) SweepExpired(context.Context, time.Time) (int, error) { return 0, nil }

type stubUserUC struct {
	registerFn     func(ctx context.Context, tgID int64) (*model.User, error)
	balanceFn      func(ctx context.Context, tgID int64) (int64, error)
	transactionsFn func(ctx context.Context, tgID int64, limit, offset int) ([]*model.Transaction, error)
}

func (s *stubUserUC) RegisterOrFetch(ctx context.Context, tgID int64, _, _, _, _ string) (*model.User, error) {
	if s.registerFn == nil {
		return &model.User{ID: tgID}, nil
	}
	return s.registerFn(ctx, tgID)
}

func (s *stubUserUC) Get(ctx context.Context, tgID int64) (*model.User, error) {
	return &model.User{ID: tgID}, nil
}

func (s *stubUserUC) Balance(ctx context.Context, tgID int64) (int64, error) {
	return s.balanceFn(ctx, tgID)
}

func (s *stubUserUC) Transactions(ctx context.Context, tgID int64, limit, offset int) ([]*model.Transaction, error) {
	if s.transactionsFn == nil {
		return nil, nil
	}
	return s.transactionsFn(ctx, tgID, limit, offset)
}

func (s *stubUserUC) Count(context.Context) (int, error) { return 0, nil }

type stubPayUC struct {
	submitFn  func(ctx context.Context, userID, credits, amountUZS int64, screenshotURL, key string) (*model.Payment, error)
	approveFn func(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error)
	rejectFn  func(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error)
	pendingFn func(ctx context.Context, limit int) ([]*model.Payment, error)
}

func (s *stubPayUC) Submit(ctx context.Context, userID, credits, amountUZS int64, screenshotURL, key string) (*model.Payment, error) {
	return s.submitFn(ctx, userID, credits, amountUZS, screenshotURL, key)
}

func (s *stubPayUC) Approve(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error) {
	return s.approveFn(ctx, paymentID, adminID, note)
}

func (s *stubPayUC) Reject(ctx context.Context, paymentID string, adminID int64, note string) (*model.Payment, error) {
	return s.rejectFn(ctx, paymentID, adminID, note)
}

func (s *stubPayUC) ListPending(ctx context.Context, limit int) ([]*model.Payment, error) {
	if s.pendingFn == nil {
		return nil, nil
	}
	return s.pendingFn(ctx, limit)
}

func (s *stubPayUC) Get(context.Context, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

type stubPricingUC struct {
	listFn   func(ctx context.Context) ([]*model.ModelPricing, error)
	upsertFn func(ctx context.Context, modelID, displayName string, kind model.GenerationKind, price int64, est int) (*model.ModelPricing, error)
}

func (s *stubPricingUC) List(ctx context.Context) ([]*model.ModelPricing, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

func (s *stubPricingUC) Get(context.Context, string) (*model.ModelPricing, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPricingUC) Upsert(ctx context.Context, modelID, displayName string, kind model.GenerationKind, price int64, est int) (*model.ModelPricing, error) {
	return s.upsertFn(ctx, modelID, displayName, kind, price, est)
}

func (s *stubPricingUC) Deactivate(context.Context, string) error { return nil }

type stubDispatcher struct {
	dispatched []*model.Generation
	err        error
}

func (d *stubDispatcher) Dispatch(g *model.Generation) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, g)
	return nil
}
