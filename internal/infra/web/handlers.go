// File: internal/infra/web/handlers.go
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-media-generation/internal/domain"
	"telegram-media-generation/internal/domain/model"
	"telegram-media-generation/internal/infra/logging"
	"telegram-media-generation/internal/infra/metrics"
	red "telegram-media-generation/internal/infra/redis"
	"telegram-media-generation/internal/usecase"
)

type adminIDKey struct{}

func withAdminID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, adminIDKey{}, id)
}

func adminIDFrom(ctx context.Context) int64 {
	if v, ok := ctx.Value(adminIDKey{}).(int64); ok {
		return v
	}
	return 0
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeDomainError maps sentinel errors to the API error taxonomy.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "not enough credits")
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrUserBanned):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrGenerationTerminal):
		writeError(w, http.StatusConflict, "ALREADY_TERMINAL", "generation already finished")
	case errors.Is(err, domain.ErrPaymentProcessed):
		writeError(w, http.StatusConflict, "ALREADY_PROCESSED", "payment already processed")
	case errors.Is(err, domain.ErrMaxActiveGenerations):
		writeError(w, http.StatusTooManyRequests, "MAX_ACTIVE_GENERATIONS", "too many active generations")
	case errors.Is(err, domain.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

type startRequest struct {
	UserID         int64           `json:"user_id"`
	Username       string          `json:"username"`
	ModelID        string          `json:"model_id"`
	Prompt         string          `json:"prompt"`
	NegativePrompt string          `json:"negative_prompt"`
	Parameters     json.RawMessage `json:"parameters"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type generationResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	ModelID        string  `json:"model_id"`
	Kind           string  `json:"kind"`
	CreditsCharged int64   `json:"credits_charged"`
	ResultURL      string  `json:"result_url,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	Refunded       bool    `json:"refunded"`
	CreatedAt      string  `json:"created_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

func toGenerationResponse(g *model.Generation) generationResponse {
	resp := generationResponse{
		ID:             g.ID,
		Status:         string(g.Status),
		ModelID:        g.ModelID,
		Kind:           string(g.Kind),
		CreditsCharged: g.CreditsCharged,
		ResultURL:      g.ResultURL,
		ErrorMessage:   g.ErrorMessage,
		Refunded:       g.Refunded,
		CreatedAt:      g.CreatedAt.Format(time.RFC3339),
	}
	if g.CompletedAt != nil {
		done := g.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &done
	}
	return resp
}

// handleStart admits and dispatches one generation. The Idempotency-Key
// header wins over the body field so standard HTTP clients work unchanged.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	if req.UserID <= 0 || req.ModelID == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id, model_id and prompt are required")
		return
	}
	ctx = logging.WithUserID(ctx, req.UserID)

	// First-line limiter in Redis; the authoritative rolling window lives in
	// the admission transaction. Redis trouble fails open: the DB check still
	// guards the cap.
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, red.UserActionKey(req.UserID, "generation_start"), s.limits.RatePerMinute, time.Minute)
		if err == nil && !ok {
			metrics.IncRateLimitTriggered()
			writeDomainError(w, domain.ErrRateLimitExceeded)
			return
		}
	}

	if _, err := s.userUC.RegisterOrFetch(ctx, req.UserID, req.Username, "", "", ""); err != nil {
		writeDomainError(w, err)
		return
	}

	g, newBalance, err := s.genUC.Start(ctx, usecase.StartRequest{
		UserID:         req.UserID,
		ModelID:        req.ModelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Parameters:     req.Parameters,
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, domain.ErrDuplicateRequest) {
		// The original admission already charged and dispatched this work.
		writeJSON(w, http.StatusConflict, struct {
			Duplicate  bool               `json:"duplicate"`
			Generation generationResponse `json:"generation"`
		}{true, toGenerationResponse(g)})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if derr := s.dispatcher.Dispatch(g); derr != nil {
		// Stays pending; the sweeper closes and refunds it if nothing retries.
		s.log.Error().Err(derr).Str("generation_id", g.ID).Msg("dispatch failed")
	}
	writeJSON(w, http.StatusAccepted, struct {
		generationResponse
		NewBalance int64 `json:"new_balance"`
	}{toGenerationResponse(g), newBalance})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id is required")
		return
	}
	g, balance, err := s.genUC.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		generationResponse
		RefundedBalance int64 `json:"refunded_balance"`
	}{toGenerationResponse(g), balance})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id is required")
		return
	}
	g, err := s.genUC.Status(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerationResponse(g))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	gens, err := s.genUC.History(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := make([]generationResponse, 0, len(gens))
	for _, g := range gens {
		items = append(items, toGenerationResponse(g))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []generationResponse `json:"items"`
	}{items})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid user id")
		return
	}
	balance, err := s.userUC.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		UserID  int64 `json:"user_id"`
		Credits int64 `json:"credits"`
	}{userID, balance})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	items, err := s.pricingUC.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []*model.ModelPricing `json:"items"`
	}{items})
}

type topupRequest struct {
	UserID         int64  `json:"user_id"`
	Credits        int64  `json:"credits"`
	AmountUZS      int64  `json:"amount_uzs"`
	ScreenshotURL  string `json:"screenshot_url"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handleTopup(w http.ResponseWriter, r *http.Request) {
	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	p, err := s.payUC.Submit(r.Context(), req.UserID, req.Credits, req.AmountUZS, req.ScreenshotURL, req.IdempotencyKey)
	if errors.Is(err, domain.ErrDuplicateRequest) {
		writeJSON(w, http.StatusConflict, struct {
			Duplicate bool           `json:"duplicate"`
			Payment   *model.Payment `json:"payment"`
		}{true, p})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := s.userUC.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []*model.Transaction `json:"items"`
	}{items})
}

type adminLoginRequest struct {
	AdminID int64  `json:"admin_id"`
	Key     string `json:"key"`
}

// handleAdminLogin exchanges the shared admin key for a JWT session. An
// empty configured key disables the endpoint entirely.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.security.AdminKey == "" {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin login disabled")
		return
	}
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.security.AdminKey)) != 1 || !s.isAdmin(req.AdminID) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin credentials")
		return
	}
	token, err := s.auth.Mint(w, req.AdminID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token string `json:"token"`
	}{token})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) isAdmin(id int64) bool {
	for _, a := range s.adminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := s.userUC.Count(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pending, err := s.payUC.ListPending(r.Context(), 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Users           int `json:"users"`
		PendingPayments int `json:"pending_payments"`
	}{users, len(pending)})
}

func (s *Server) handlePendingPayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.payUC.ListPending(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []*model.Payment `json:"items"`
	}{items})
}

type reviewRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	p, err := s.payUC.Approve(r.Context(), chi.URLParam(r, "id"), adminIDFrom(r.Context()), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	p, err := s.payUC.Reject(r.Context(), chi.URLParam(r, "id"), adminIDFrom(r.Context()), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type upsertModelRequest struct {
	ModelID          string `json:"model_id"`
	DisplayName      string `json:"display_name"`
	Kind             string `json:"kind"`
	PriceCredits     int64  `json:"price_credits"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

func (s *Server) handleUpsertModel(w http.ResponseWriter, r *http.Request) {
	var req upsertModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return
	}
	rec, err := s.pricingUC.Upsert(r.Context(), req.ModelID, req.DisplayName, model.GenerationKind(req.Kind), req.PriceCredits, req.EstimatedSeconds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type providerWebhook struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"` // completed | error
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

// handleProviderWebhook accepts push-style completion callbacks. Polling in
// the worker remains the source of truth; the webhook just settles faster.
// Settlement stays idempotent because the status transitions are conditional.
func (s *Server) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var hook providerWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil || hook.TaskID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "task_id is required")
		return
	}
	g, err := s.genUC.FindByTask(r.Context(), hook.TaskID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	switch hook.Status {
	case "completed":
		err = s.genUC.Complete(r.Context(), g.ID, hook.ResultURL)
	default:
		msg := hook.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		err = s.genUC.Fail(r.Context(), g.ID, msg)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func userIDParam(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}
