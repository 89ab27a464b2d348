// File: internal/infra/web/server.go
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-media-generation/internal/config"
	"telegram-media-generation/internal/domain/model"
	red "telegram-media-generation/internal/infra/redis"
	"telegram-media-generation/internal/usecase"
)

// Dispatcher hands admitted generations to the processing pool.
type Dispatcher interface {
	Dispatch(g *model.Generation) error
}

type Server struct {
	genUC      usecase.GenerationUseCase
	userUC     usecase.UserUseCase
	payUC      usecase.PaymentUseCase
	pricingUC  usecase.PricingUseCase
	dispatcher Dispatcher
	limiter    *red.RateLimiter
	auth       *AuthManager
	limits     config.LimitsConfig
	security   config.SecurityConfig
	adminIDs   []int64
	log        *zerolog.Logger
}

func NewServer(
	genUC usecase.GenerationUseCase,
	userUC usecase.UserUseCase,
	payUC usecase.PaymentUseCase,
	pricingUC usecase.PricingUseCase,
	dispatcher Dispatcher,
	limiter *red.RateLimiter,
	auth *AuthManager,
	limits config.LimitsConfig,
	security config.SecurityConfig,
	adminIDs []int64,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		genUC:      genUC,
		userUC:     userUC,
		payUC:      payUC,
		pricingUC:  pricingUC,
		dispatcher: dispatcher,
		limiter:    limiter,
		auth:       auth,
		limits:     limits,
		security:   security,
		adminIDs:   adminIDs,
		log:        logger,
	}
}

// Router builds the full route tree with the standard middleware chain.
func (s *Server) Router(cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/provider", s.handleProviderWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/generation/start", s.handleStart)
		r.Post("/generation/cancel/{id}", s.handleCancel)
		r.Get("/generation/status/{id}", s.handleStatus)
		r.Get("/generation/history", s.handleHistory)
		r.Get("/balance/{userID}", s.handleBalance)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/models", s.handleListModels)
		r.Post("/payment/topup", s.handleTopup)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleAdminLogin)
			r.Group(func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Post("/logout", s.handleAdminLogout)
				r.Get("/stats", s.handleAdminStats)
				r.Get("/payments/pending", s.handlePendingPayments)
				r.Post("/payments/{id}/approve", s.handleApprovePayment)
				r.Post("/payments/{id}/reject", s.handleRejectPayment)
				r.Put("/models", s.handleUpsertModel)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// adminOnly gates the review endpoints behind the JWT session.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil || claims.Role != "admin" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "admin token required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdminID(r.Context(), claims.AdminID)))
	})
}
