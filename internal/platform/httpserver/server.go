package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	datasetregistry "geneledger/contexts/data-marketplace/dataset-registry"
	registryerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	registryhttp "geneledger/contexts/data-marketplace/dataset-registry/transport/http"

	_ "geneledger/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxBodyBytes = 1 << 20

type Options struct {
	// Metrics is mounted at /metrics when set.
	Metrics            http.Handler
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	registry datasetregistry.Module
	limiter  *CallerRateLimiter
	server   *http.Server
}

func New(
	registry datasetregistry.Module,
	logger *slog.Logger,
	addr string,
	options Options,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		registry: registry,
	}
	if options.RateLimitPerSecond > 0 {
		s.limiter = NewCallerRateLimiter(options.RateLimitPerSecond, options.RateLimitBurst)
	}
	s.registerRoutes(options.Metrics)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST /v1/datasets", s.throttled(s.handleRegisterDataset))
	s.mux.HandleFunc("GET /v1/datasets", s.handleListDatasets)
	s.mux.HandleFunc("GET /v1/datasets/{dataset_id}", s.handleGetDataset)
	s.mux.HandleFunc("POST /v1/datasets/{dataset_id}/purchase", s.throttled(s.handlePurchaseAccess))
	s.mux.HandleFunc("GET /v1/datasets/{dataset_id}/access", s.handleCanAccess)

	s.mux.HandleFunc("GET /v1/escrow/balance", s.handleEscrowBalance)
	s.mux.HandleFunc("POST /v1/escrow/withdraw", s.throttled(s.handleWithdraw))
	s.mux.HandleFunc("GET /v1/withdrawals", s.handleListWithdrawals)
}

func (s *Server) throttled(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Id")))
		if key == "" {
			key = resolveClientIP(r)
		}
		if !s.limiter.Allow(key) {
			s.logger.Warn("request throttled",
				"event", "http_request_throttled",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"caller", key,
				"path", r.URL.Path,
			)
			writeRegistryError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req registryhttp.RegisterDatasetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.registry.Handler.RegisterDatasetHandler(r.Context(), owner, req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := registryhttp.ListDatasetsRequest{
		Owner:      query.Get("owner"),
		AccessTier: query.Get("access_tier"),
		Tag:        query.Get("tag"),
		Query:      query.Get("q"),
		Cursor:     query.Get("cursor"),
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			writeRegistryError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
			return
		}
		req.Limit = limit
	}

	resp, err := s.registry.Handler.ListDatasetsHandler(r.Context(), req)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathDatasetID(w, r)
	if !ok {
		return
	}
	resp, err := s.registry.Handler.GetDatasetHandler(r.Context(), datasetID)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePurchaseAccess(w http.ResponseWriter, r *http.Request) {
	buyer, ok := requireCaller(w, r)
	if !ok {
		return
	}
	datasetID, ok := pathDatasetID(w, r)
	if !ok {
		return
	}
	var req registryhttp.PurchaseAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.registry.Handler.PurchaseAccessHandler(
		r.Context(),
		buyer,
		r.Header.Get("Idempotency-Key"),
		datasetID,
		req,
	)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCanAccess(w http.ResponseWriter, r *http.Request) {
	datasetID, ok := pathDatasetID(w, r)
	if !ok {
		return
	}
	principal := strings.TrimSpace(r.URL.Query().Get("principal"))
	if principal == "" {
		principal = strings.TrimSpace(r.Header.Get("X-User-Id"))
	}
	if principal == "" {
		writeRegistryError(w, http.StatusBadRequest, "missing_principal", "principal query or X-User-Id header is required", nil)
		return
	}

	resp, err := s.registry.Handler.CanAccessHandler(r.Context(), principal, datasetID)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.registry.Handler.EscrowBalanceHandler(r.Context(), owner)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.registry.Handler.WithdrawHandler(r.Context(), owner)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.registry.Handler.ListWithdrawalsHandler(r.Context(), owner)
	if err != nil {
		writeRegistryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if caller == "" {
		writeRegistryError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required", nil)
		return "", false
	}
	return caller, true
}

func pathDatasetID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	datasetID, err := strconv.ParseUint(r.PathValue("dataset_id"), 10, 64)
	if err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_dataset_id", "dataset_id must be a positive integer", nil)
		return 0, false
	}
	return datasetID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeRegistryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return false
	}
	return true
}

func writeRegistryDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *registryerrors.ValidationError
		notFoundErr   *registryerrors.NotFoundError
		paymentErr    *registryerrors.PaymentError
		withdrawErr   *registryerrors.WithdrawError
	)
	switch {
	case errors.Is(err, registryerrors.ErrIdempotencyConflict):
		writeRegistryError(w, http.StatusConflict, "idempotency_conflict", err.Error(), nil)
	case errors.Is(err, registryerrors.ErrAlreadyGranted):
		writeRegistryError(w, http.StatusConflict, "already_granted", err.Error(), nil)
	case errors.Is(err, registryerrors.ErrOpenDatasetNotPurchasable):
		writeRegistryError(w, http.StatusBadRequest, "open_dataset_not_purchasable", err.Error(), nil)
	case errors.As(err, &validationErr):
		writeRegistryError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]string{
			"field": validationErr.Field,
		})
	case errors.As(err, &notFoundErr):
		writeRegistryError(w, http.StatusNotFound, "dataset_not_found", err.Error(), map[string]string{
			"dataset_id": strconv.FormatUint(notFoundErr.DatasetID, 10),
		})
	case errors.As(err, &paymentErr):
		writeRegistryError(w, http.StatusPaymentRequired, "payment_mismatch", err.Error(), map[string]string{
			"dataset_id": strconv.FormatUint(paymentErr.DatasetID, 10),
			"expected":   paymentErr.Expected,
			"got":        paymentErr.Got,
		})
	case errors.Is(err, registryerrors.ErrSettlementFailed) && errors.As(err, &withdrawErr):
		writeRegistryError(w, http.StatusBadGateway, "settlement_failed", err.Error(), map[string]string{
			"owner":  withdrawErr.Owner,
			"amount": withdrawErr.Amount,
		})
	case errors.Is(err, registryerrors.ErrNothingToWithdraw):
		writeRegistryError(w, http.StatusConflict, "nothing_to_withdraw", err.Error(), nil)
	case errors.Is(err, registryerrors.ErrWithdraw):
		writeRegistryError(w, http.StatusConflict, "withdraw_failed", err.Error(), nil)
	case errors.Is(err, registryerrors.ErrConfiguration):
		writeRegistryError(w, http.StatusServiceUnavailable, "registry_unavailable", "registry storage is unavailable", nil)
	default:
		writeRegistryError(w, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
	}
}

func writeRegistryError(w http.ResponseWriter, status int, code string, message string, details map[string]string) {
	writeJSON(w, status, registryhttp.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
