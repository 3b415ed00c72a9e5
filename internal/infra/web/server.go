// File: internal/infra/web/server.go
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/usecase"
)

// PaymentKicker runs one out-of-band status check for a payment. Implemented
// by the polling registry.
type PaymentKicker interface {
	Kick(ctx context.Context, paymentID string)
}

// Server exposes health, metrics, the gateway return endpoint and a small
// JWT-guarded ops API.
type Server struct {
	auth       *AuthManager
	authSecret string
	kicker     PaymentKicker
	checkoutUC usecase.CheckoutUseCase
	retryUC    usecase.RetryUseCase
	lifeUC     usecase.LifecycleUseCase
	provUC     usecase.ProvisionUseCase
	retries    repository.RetryRepository
	payments   repository.PaymentRepository
	server     *http.Server
	log        zerolog.Logger
}

func NewServer(
	port int,
	authSecret string,
	secureCookies bool,
	kicker PaymentKicker,
	checkoutUC usecase.CheckoutUseCase,
	retryUC usecase.RetryUseCase,
	lifeUC usecase.LifecycleUseCase,
	provUC usecase.ProvisionUseCase,
	retries repository.RetryRepository,
	payments repository.PaymentRepository,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		auth:       NewAuthManager(authSecret, secureCookies, 30*time.Minute),
		authSecret: authSecret,
		kicker:     kicker,
		checkoutUC: checkoutUC,
		retryUC:    retryUC,
		lifeUC:     lifeUC,
		provUC:     provUC,
		retries:    retries,
		payments:   payments,
		log:        logger.With().Str("component", "web").Logger(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router; split out so tests can drive it with httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.traceContext)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/payment/return", s.handlePaymentReturn)

	// frontend API: the bot process drives purchases through these
	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/tariffs", s.handleListTariffs)
		r.Post("/checkouts", s.handleCreateCheckout)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/status", s.handleStatus)
			r.Post("/sweeps/retry", s.handleRetrySweep)
			r.Post("/sweeps/lifecycle", s.handleLifecycleSweep)
			r.Post("/payments/{id}/resolve", s.handleResolvePayment)
			r.Post("/subscriptions/{id}/revoke", s.handleRevoke)
		})
	})
	return r
}

// traceContext promotes chi's request id into the log context so every line
// emitted while serving the request carries the same trace_id.
func (s *Server) traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), &s.log)
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handlePaymentReturn is where the gateway redirects the user after the
// checkout page. It nudges the check for that payment so the outcome lands
// within seconds instead of a poll interval.
func (s *Server) handlePaymentReturn(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID != "" && s.kicker != nil {
		s.kicker.Kick(r.Context(), paymentID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Payment received for processing. You can return to the bot.</p></body></html>")
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := s.checkoutUC.ListTariffs(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing tariffs failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tariffs)
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerID             string  `json:"owner_id"`
		ChatID              int64   `json:"chat_id"`
		TariffID            string  `json:"tariff_id"`
		TargetID            string  `json:"target_id"`
		RenewSubscriptionID *string `json:"renew_subscription_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	ctx := logging.WithOwnerID(r.Context(), body.OwnerID)
	p, redirect, err := s.checkoutUC.Initiate(ctx, body.OwnerID, body.ChatID,
		body.TariffID, body.TargetID, body.RenewSubscriptionID)
	if err != nil {
		logging.With(ctx, &s.log).Warn().Err(err).Str("tariff_id", body.TariffID).Msg("checkout failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"payment_id":   p.ID,
		"redirect_url": redirect,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if s.authSecret == "" || body.Secret != s.authSecret {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	openRetries, err := s.retries.CountOpen(r.Context(), repository.NoTX)
	if err != nil {
		s.log.Error().Err(err).Msg("counting open retries failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	pending, err := s.payments.ListPending(r.Context(), repository.NoTX, 1000)
	if err != nil {
		s.log.Error().Err(err).Msg("listing pending payments failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"open_retry_entries": openRetries,
		"pending_payments":   len(pending),
	})
}

func (s *Server) handleRetrySweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.retryUC.ProcessRetryQueue(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("manual retry sweep failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

func (s *Server) handleLifecycleSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := s.lifeUC.Sweep(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("manual lifecycle sweep failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleResolvePayment re-drives provisioning for a paid payment, covering
// the rare crash window between the status flip and the ledger write.
func (s *Server) handleResolvePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithPaymentID(r.Context(), id)
	if err := s.provUC.ResolvePayment(ctx, id); err != nil {
		logging.With(ctx, &s.log).Warn().Err(err).Msg("manual resolve failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_id": id, "result": "resolved"})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.provUC.RevokeSubscription(r.Context(), id, false); err != nil {
		s.log.Warn().Err(err).Str("subscription_id", id).Msg("manual revoke failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "result": "revoked"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
