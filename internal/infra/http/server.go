package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-market-billing/internal/domain/ports/repository"
	"telegram-market-billing/internal/infra/redis"
	"telegram-market-billing/internal/usecase"
)

// Server exposes the ops surface: liveness, Prometheus metrics and a few
// read-only admin endpoints. It is bound to an internal port and carries no
// authentication of its own.
type Server struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	recurring  repository.RecurringSubscriptionRepository
	purchaseUC usecase.PurchaseUseCase
	partnerUC  usecase.PartnerUseCase
	log        *zerolog.Logger
	server     *http.Server
}

func NewServer(
	port int,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	recurring repository.RecurringSubscriptionRepository,
	purchaseUC usecase.PurchaseUseCase,
	partnerUC usecase.PartnerUseCase,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		pool:       pool,
		rdb:        rdb,
		recurring:  recurring,
		purchaseUC: purchaseUC,
		partnerUC:  partnerUC,
		log:        logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/purchases", s.handleCreatePurchase)
		r.Post("/purchases/{invoiceID}/cancel", s.handleCancelPurchase)
		r.Get("/subscriptions/active", s.handleActiveCount)
		r.Get("/withdrawals/pending", s.handlePendingWithdrawals)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("ops server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		http.Error(w, "db unreachable", http.StatusServiceUnavailable)
		return
	}
	if err := s.rdb.Ping(ctx); err != nil {
		http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    int64  `json:"user_id"`
		ProductID string `json:"product_id"`
		Months    int    `json:"months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p, payURL, err := s.purchaseUC.Initiate(r.Context(), req.UserID, req.ProductID, req.Months)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", req.UserID).Msg("purchase initiation failed")
		http.Error(w, "purchase initiation failed", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]interface{}{
		"payment_id": p.ID,
		"invoice_id": p.InvoiceID,
		"pay_url":    payURL,
	})
}

func (s *Server) handleCancelPurchase(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	if err := s.purchaseUC.Cancel(r.Context(), invoiceID); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("purchase cancel failed")
		http.Error(w, "cancel failed", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.recurring.CountActive(r.Context(), repository.NoTX)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"active": n})
}

func (s *Server) handlePendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.partnerUC.PendingWithdrawals(r.Context())
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"items": reqs, "count": len(reqs)})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
