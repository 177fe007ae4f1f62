package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bridgemint/native/agents"
	"bridgemint/native/collateral"
	"bridgemint/native/liquidation"
	"bridgemint/native/minting"
	"bridgemint/native/oracle"
	"bridgemint/native/params"
	"bridgemint/native/redemption"
	"bridgemint/state"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func nowUnix() int64 { return time.Now().Unix() }

// Deps bundles everything the RPC surface needs.
type Deps struct {
	Log      *slog.Logger
	State    *state.Manager
	Prices   *oracle.FeedStore
	Registry *collateral.Registry
	Params   *params.Store

	Agents      *agents.Engine
	Minting     *minting.Engine
	Redemption  *redemption.Engine
	Liquidation *liquidation.Engine

	// AuthToken gates the governance endpoints. Empty disables them.
	AuthToken string
}

// Server exposes the module over HTTP.
type Server struct {
	deps    Deps
	log     *slog.Logger
	limiter *ipRateLimiter
	srv     *http.Server
}

// NewServer wires the routes against the supplied dependencies.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		deps:    deps,
		log:     log,
		limiter: newIPRateLimiter(20, 40),
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(recoverMiddleware(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleCreateAgent)
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Get("/free-lots", s.handleFreeLots)
			r.Post("/collateral/vault", s.handleDepositVault)
			r.Post("/collateral/pool", s.handleDepositPool)
			r.Delete("/collateral/pool", s.handleExitPool)
			r.Post("/withdrawal", s.handleAnnounceWithdrawal)
			r.Post("/withdrawal/execute", s.handleExecuteWithdrawal)
			r.Post("/topup", s.handleConfirmTopup)
			r.Post("/vault-token", s.handleSwitchVaultToken)
			r.Post("/available", s.handleMakeAvailable)
			r.Delete("/available", s.handleExitAvailable)
			r.Post("/settings", s.handleAgentSettings)
			r.Post("/destroy/announce", s.handleAnnounceDestroy)
			r.Post("/destroy", s.handleDestroyAgent)
			r.Post("/self-mint", s.handleSelfMint)
			r.Post("/self-close", s.handleSelfClose)
			r.Post("/liquidation/start", s.handleStartLiquidation)
			r.Post("/liquidation/end", s.handleEndLiquidation)
			r.Post("/liquidation", s.handleLiquidate)
			r.Post("/challenges/illegal-payment", s.handleChallengeIllegalPayment)
			r.Post("/challenges/double-payment", s.handleChallengeDoublePayment)
			r.Post("/challenges/negative-balance", s.handleChallengeNegativeBalance)
		})

		r.Post("/reservations", s.handleReserveCollateral)
		r.Route("/reservations/{reservationID}", func(r chi.Router) {
			r.Get("/", s.handleGetReservation)
			r.Post("/execute", s.handleExecuteMinting)
			r.Post("/default", s.handleMintingDefault)
			r.Post("/unstick", s.handleUnstickMinting)
		})

		r.Post("/redemptions", s.handleRedeem)
		r.Route("/redemptions/{requestID}", func(r chi.Router) {
			r.Get("/", s.handleGetRedemption)
			r.Post("/confirm", s.handleConfirmRedemption)
			r.Post("/default", s.handleRedemptionDefault)
			r.Post("/finish", s.handleFinishRedemption)
			r.Post("/reject", s.handleRejectRedemption)
		})

		r.Get("/supply", s.handleSupply)
		r.Get("/collateral-types", s.handleCollateralTypes)
		r.Get("/prices/{symbol}", s.handleGetPrice)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuthToken)
			r.Post("/prices", s.handlePublishPrice)
			r.Post("/cursor", s.handleSetCursor)
			r.Post("/system/pause", s.handlePause)
			r.Post("/system/unpause", s.handleUnpause)
			r.Get("/system/settings", s.handleGetSettings)
			r.Post("/system/settings/{name}", s.handleUpdateSetting)
		})
	})
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.Info("rpc server listening", "addr", addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
