//go:build !integration

package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telegram-media-generation/internal/config"
	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/infra/web"
	"telegram-media-generation/internal/usecase"
)

type testServer struct {
	gen        *stubGenUC
	users      *stubUserUC
	pay        *stubPayUC
	pricing    *stubPricingUC
	dispatcher *stubDispatcher
	auth       *web.AuthManager
	mux        http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		gen:        &stubGenUC{},
		users:      &stubUserUC{},
		pay:        &stubPayUC{},
		pricing:    &stubPricingUC{},
		dispatcher: &stubDispatcher{},
		auth:       web.NewAuthManager("test-secret", false, "", time.Hour),
	}
	srv := web.NewServer(
		ts.gen, ts.users, ts.pay, ts.pricing, ts.dispatcher, nil, ts.auth,
		config.LimitsConfig{MaxActive: 5, RatePerMinute: 10},
		config.SecurityConfig{JWTSecret: "test-secret", AdminKey: "admin-key", TokenTTL: time.Hour},
		[]int64{42}, newLogger(),
	)
	ts.mux = srv.Router(config.ServerConfig{RequestTimeout: 5 * time.Second})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func pendingGen(id string, userID int64) *model.Generation {
	return &model.Generation{
		ID: id, UserID: userID, ModelID: "flux-pro", Kind: model.GenerationKindImage,
		CreditsCharged: 5, Status: model.GenerationStatusPending,
		CreatedAt: time.Now(), TimeoutAt: time.Now().Add(time.Minute),
	}
}

func TestStartEndpoint(t *testing.T) {
	const body = `{"user_id":1,"model_id":"flux-pro","prompt":"a cat"}`

	t.Run("accepted", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.startFn = func(_ context.Context, req usecase.StartRequest) (*model.Generation, int64, error) {
			return pendingGen("gen-1", req.UserID), 15, nil
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/generation/start", body, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("code = %d, want 202; body %s", rec.Code, rec.Body)
		}
		var resp struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			NewBalance int64  `json:"new_balance"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.ID != "gen-1" || resp.Status != "pending" {
			t.Fatalf("resp = %+v", resp)
		}
		if resp.NewBalance != 15 {
			t.Fatalf("new_balance = %d, want 15", resp.NewBalance)
		}
		if len(ts.dispatcher.dispatched) != 1 {
			t.Fatalf("dispatched = %d, want 1", len(ts.dispatcher.dispatched))
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/generation/start", `{"user_id":1}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %d, want 400", rec.Code)
		}
	})

	t.Run("idempotency header wins over body", func(t *testing.T) {
		ts := newTestServer(t)
		var gotKey string
		ts.gen.startFn = func(_ context.Context, req usecase.StartRequest) (*model.Generation, int64, error) {
			gotKey = req.IdempotencyKey
			return pendingGen("gen-1", req.UserID), 15, nil
		}

		ts.do(t, http.MethodPost, "/api/v1/generation/start",
			`{"user_id":1,"model_id":"flux-pro","prompt":"x","idempotency_key":"from-body"}`,
			map[string]string{"Idempotency-Key": "from-header"})
		if gotKey != "from-header" {
			t.Fatalf("key = %q, want from-header", gotKey)
		}
	})

	t.Run("duplicate returns conflict with the original", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.startFn = func(context.Context, usecase.StartRequest) (*model.Generation, int64, error) {
			return pendingGen("gen-orig", 1), 0, domain.ErrDuplicateRequest
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/generation/start", body, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %d, want 409", rec.Code)
		}
		var resp struct {
			Duplicate  bool `json:"duplicate"`
			Generation struct {
				ID string `json:"id"`
			} `json:"generation"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if !resp.Duplicate || resp.Generation.ID != "gen-orig" {
			t.Fatalf("resp = %+v", resp)
		}
		if len(ts.dispatcher.dispatched) != 0 {
			t.Fatal("duplicate must not re-dispatch")
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{domain.ErrInsufficientCredits, http.StatusPaymentRequired},
			{domain.ErrMaxActiveGenerations, http.StatusTooManyRequests},
			{domain.ErrRateLimitExceeded, http.StatusTooManyRequests},
			{domain.ErrUserBanned, http.StatusForbidden},
			{domain.ErrNotFound, http.StatusNotFound},
		}
		for _, tc := range cases {
			ts := newTestServer(t)
			ts.gen.startFn = func(context.Context, usecase.StartRequest) (*model.Generation, int64, error) {
				return nil, 0, tc.err
			}
			rec := ts.do(t, http.MethodPost, "/api/v1/generation/start", body, nil)
			if rec.Code != tc.code {
				t.Errorf("%v: code = %d, want %d", tc.err, rec.Code, tc.code)
			}
		}
	})

	t.Run("dispatch failure still accepts", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.startFn = func(_ context.Context, req usecase.StartRequest) (*model.Generation, int64, error) {
			return pendingGen("gen-1", req.UserID), 15, nil
		}
		ts.dispatcher.err = context.DeadlineExceeded

		// The row is admitted and charged; the sweeper will settle it.
		rec := ts.do(t, http.MethodPost, "/api/v1/generation/start", body, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("code = %d, want 202", rec.Code)
		}
	})
}

func TestCancelEndpoint(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.cancelFn = func(_ context.Context, userID int64, id string) (*model.Generation, int64, error) {
			g := pendingGen(id, userID)
			g.Status = model.GenerationStatusCancelled
			g.Refunded = true
			return g, 20, nil
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/generation/cancel/gen-1?user_id=1", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200; body %s", rec.Code, rec.Body)
		}
		var resp struct {
			Status          string `json:"status"`
			RefundedBalance int64  `json:"refunded_balance"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != "cancelled" || resp.RefundedBalance != 20 {
			t.Fatalf("resp = %+v, want cancelled with refunded_balance 20", resp)
		}
	})

	t.Run("missing user id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/generation/cancel/gen-1", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %d, want 400", rec.Code)
		}
	})

	t.Run("foreign generation", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.cancelFn = func(context.Context, int64, string) (*model.Generation, int64, error) {
			return nil, 0, domain.ErrPermissionDenied
		}
		rec := ts.do(t, http.MethodPost, "/api/v1/generation/cancel/gen-1?user_id=2", "", nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %d, want 403", rec.Code)
		}
	})

	t.Run("already finished", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.cancelFn = func(context.Context, int64, string) (*model.Generation, int64, error) {
			return nil, 0, domain.ErrGenerationTerminal
		}
		rec := ts.do(t, http.MethodPost, "/api/v1/generation/cancel/gen-1?user_id=1", "", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %d, want 409", rec.Code)
		}
	})
}

func TestBalanceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.users.balanceFn = func(_ context.Context, tgID int64) (int64, error) {
		if tgID != 7 {
			return 0, domain.ErrUserNotFound
		}
		return 15, nil
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/balance/7", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var resp struct {
		Credits int64 `json:"credits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Credits != 15 {
		t.Fatalf("credits = %d, want 15", resp.Credits)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/balance/8", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user code = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/balance/abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id code = %d, want 400", rec.Code)
	}
}

func TestTopupEndpoint(t *testing.T) {
	const body = `{"user_id":1,"credits":100,"amount_uzs":50000,"screenshot_url":"https://cdn/s.png"}`

	t.Run("created", func(t *testing.T) {
		ts := newTestServer(t)
		ts.pay.submitFn = func(_ context.Context, userID, credits, amountUZS int64, _, _ string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-1", UserID: userID, Credits: credits, Status: model.PaymentStatusPending}, nil
		}
		rec := ts.do(t, http.MethodPost, "/api/v1/payment/topup", body, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %d, want 201", rec.Code)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		ts := newTestServer(t)
		ts.pay.submitFn = func(context.Context, int64, int64, int64, string, string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-orig"}, domain.ErrDuplicateRequest
		}
		rec := ts.do(t, http.MethodPost, "/api/v1/payment/topup", body, map[string]string{"Idempotency-Key": "k"})
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %d, want 409", rec.Code)
		}
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("rejects missing token", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/payments/pending", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %d, want 401", rec.Code)
		}
	})

	t.Run("accepts a minted token and passes the admin id", func(t *testing.T) {
		ts := newTestServer(t)
		token, err := ts.auth.Mint(httptest.NewRecorder(), 42)
		if err != nil {
			t.Fatal(err)
		}
		var gotAdmin int64
		ts.pay.approveFn = func(_ context.Context, paymentID string, adminID int64, _ string) (*model.Payment, error) {
			gotAdmin = adminID
			return &model.Payment{ID: paymentID, Status: model.PaymentStatusApproved}, nil
		}

		rec := ts.do(t, http.MethodPost, "/api/v1/admin/payments/pay-1/approve", `{"note":"ok"}`,
			map[string]string{"Authorization": "Bearer " + token})
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200; body %s", rec.Code, rec.Body)
		}
		if gotAdmin != 42 {
			t.Fatalf("admin id = %d, want 42", gotAdmin)
		}
	})

	t.Run("double approve maps to conflict", func(t *testing.T) {
		ts := newTestServer(t)
		token, err := ts.auth.Mint(httptest.NewRecorder(), 42)
		if err != nil {
			t.Fatal(err)
		}
		ts.pay.approveFn = func(context.Context, string, int64, string) (*model.Payment, error) {
			return nil, domain.ErrPaymentProcessed
		}
		rec := ts.do(t, http.MethodPost, "/api/v1/admin/payments/pay-1/approve", "{}",
			map[string]string{"Authorization": "Bearer " + token})
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %d, want 409", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/payments/pending", "",
			map[string]string{"Authorization": "Bearer not.a.jwt"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %d, want 401", rec.Code)
		}
	})
}

func TestAdminLogin(t *testing.T) {
	t.Run("valid credentials mint a usable session", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/admin/login", `{"admin_id":42,"key":"admin-key"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200; body %s", rec.Code, rec.Body)
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
			t.Fatalf("token = %q, err = %v", resp.Token, err)
		}

		ts.pay.pendingFn = func(context.Context, int) ([]*model.Payment, error) { return nil, nil }
		rec = ts.do(t, http.MethodGet, "/api/v1/admin/payments/pending", "",
			map[string]string{"Authorization": "Bearer " + resp.Token})
		if rec.Code != http.StatusOK {
			t.Fatalf("minted token refused: %d", rec.Code)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/admin/login", `{"admin_id":42,"key":"nope"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %d, want 401", rec.Code)
		}
	})

	t.Run("unlisted admin id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/admin/login", `{"admin_id":99,"key":"admin-key"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %d, want 401", rec.Code)
		}
	})
}

func TestTransactionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.users.transactionsFn = func(_ context.Context, userID int64, _, _ int) ([]*model.Transaction, error) {
		return []*model.Transaction{{ID: "t1", UserID: userID, Type: model.TransactionTypeBonus, Amount: 10}}, nil
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/transactions?user_id=7", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var resp struct {
		Items []struct {
			ID string `json:"ID"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp.Items) != 1 {
		t.Fatalf("items = %d, err = %v", len(resp.Items), err)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/transactions", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id code = %d, want 400", rec.Code)
	}
}

func TestProviderWebhook(t *testing.T) {
	t.Run("completed settles the job", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.findTaskFn = func(_ context.Context, taskID string) (*model.Generation, error) {
			return pendingGen("gen-1", 1), nil
		}
		var completedID, completedURL string
		ts.gen.completeFn = func(_ context.Context, id, url string) error {
			completedID, completedURL = id, url
			return nil
		}

		rec := ts.do(t, http.MethodPost, "/webhook/provider",
			`{"task_id":"task-1","status":"completed","result_url":"https://cdn/out.png"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		if completedID != "gen-1" || completedURL != "https://cdn/out.png" {
			t.Fatalf("Complete(%q, %q)", completedID, completedURL)
		}
	})

	t.Run("failure fails the job", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.findTaskFn = func(context.Context, string) (*model.Generation, error) {
			return pendingGen("gen-1", 1), nil
		}
		var failedMsg string
		ts.gen.failFn = func(_ context.Context, _, msg string) error {
			failedMsg = msg
			return nil
		}

		rec := ts.do(t, http.MethodPost, "/webhook/provider",
			`{"task_id":"task-1","status":"error","error":"nsfw filter"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		if failedMsg != "nsfw filter" {
			t.Fatalf("fail msg = %q", failedMsg)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		ts := newTestServer(t)
		ts.gen.findTaskFn = func(context.Context, string) (*model.Generation, error) {
			return nil, domain.ErrNotFound
		}
		rec := ts.do(t, http.MethodPost, "/webhook/provider", `{"task_id":"ghost","status":"completed"}`, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %d, want 404", rec.Code)
		}
	})

	t.Run("missing task id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/webhook/provider", `{}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %d, want 400", rec.Code)
		}
	})
}
