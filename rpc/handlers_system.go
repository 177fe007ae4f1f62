package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bridgemint/native/oracle"
)

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.deps.State.TotalSupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"totalSupplyUBA": formatBig(supply)})
}

func (s *Server) handleCollateralTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.List())
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, err := s.deps.Prices.GetPrice(symbol)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    strings.ToUpper(strings.TrimSpace(symbol)),
		"num":       formatBig(price.Num),
		"den":       formatBig(price.Den),
		"timestamp": price.Timestamp,
	})
}

func (s *Server) handlePublishPrice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Symbol    string `json:"symbol"`
		Num       string `json:"num"`
		Den       string `json:"den"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	num, err := parseAmount(payload.Num)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("num: %w", err))
		return
	}
	den, err := parseAmount(payload.Den)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("den: %w", err))
		return
	}
	price := oracle.Price{Num: num, Den: den, Timestamp: payload.Timestamp}
	if err := s.deps.Prices.Publish(payload.Symbol, price); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

func (s *Server) handleSetCursor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Block     uint64 `json:"block"`
		Timestamp uint64 `json:"timestamp"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.State.SetUnderlyingCursor(payload.Block, payload.Timestamp); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	block, timestamp, err := s.deps.State.UnderlyingCursor()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"block": block, "timestamp": timestamp})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Module          string `json:"module"`
		ByGovernance    bool   `json:"byGovernance"`
		DurationSeconds int64  `json:"durationSeconds"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Module) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("module missing"))
		return
	}
	pause, changed, err := s.deps.State.EmergencyPause(payload.Module, payload.ByGovernance, payload.DurationSeconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pausedUntil": pause.PausedUntil,
		"changed":     changed,
	})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Module       string `json:"module"`
		ByGovernance bool   `json:"byGovernance"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Module) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("module missing"))
		return
	}
	pause, err := s.deps.State.Unpause(payload.Module, payload.ByGovernance)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pausedUntil": pause.PausedUntil})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, ok, err := s.deps.Params.Settings()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("settings not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var payload struct {
		Value uint64 `json:"value"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	now := nowUnix()
	var err error
	switch name {
	case "redemptionPaymentExtensionSeconds":
		err = s.deps.Params.UpdateRedemptionPaymentExtensionSeconds(now, payload.Value)
	case "lotSizeAMG":
		err = s.deps.Params.UpdateLotSizeAMG(now, payload.Value)
	case "collateralReservationFeeBIPS":
		err = s.deps.Params.UpdateCollateralReservationFeeBIPS(now, payload.Value)
	case "redemptionFeeBIPS":
		err = s.deps.Params.UpdateRedemptionFeeBIPS(now, payload.Value)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown setting %q", name))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
