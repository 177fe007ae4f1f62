package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

func decodeBody(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func agentIDParam(r *http.Request) ([20]byte, error) {
	return parseAddress(chi.URLParam(r, "agentID"))
}

func uint64Param(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.State.ListAgents()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]agentView, 0, len(list))
	for _, agent := range list {
		views = append(views, newAgentView(agent))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.deps.State.GetAgent(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("agent not found"))
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(agent))
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Owner            string                      `json:"owner"`
		VaultToken       string                      `json:"vaultToken"`
		FeeBIPS          uint64                      `json:"feeBIPS"`
		PoolFeeShareBIPS uint64                      `json:"poolFeeShareBIPS"`
		AddressProof     addressValidityProofPayload `json:"addressProof"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owner, err := parseAddress(payload.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.deps.Agents.CreateAgent(owner, payload.AddressProof.toProof(), payload.VaultToken, payload.FeeBIPS, payload.PoolFeeShareBIPS)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAgentView(agent))
}

func (s *Server) handleFreeLots(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lots, err := s.deps.Agents.FreeLots(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"freeLots": formatBig(lots)})
}

type callerAmountPayload struct {
	Caller    string `json:"caller"`
	AmountWei string `json:"amountWei"`
}

func (s *Server) handleDepositVault(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload callerAmountPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.AmountWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Agents.DepositVaultCollateral(caller, id, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

func (s *Server) handleDepositPool(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload callerAmountPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.AmountWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Agents.DepositPoolCollateral(from, id, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

func (s *Server) handleExitPool(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload callerAmountPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.AmountWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Agents.ExitPool(caller, id, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exited"})
}

func (s *Server) handleAnnounceWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload callerAmountPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.AmountWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	announcementID, err := s.deps.Agents.AnnounceVaultWithdrawal(caller, id, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"announcementId": announcementID})
}

type callerPayload struct {
	Caller string `json:"caller"`
}

func (s *Server) callerAgentOp(w http.ResponseWriter, r *http.Request, op func(caller, agentID [20]byte) error, status string) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload callerPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := op(caller, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.callerAgentOp(w, r, s.deps.Agents.WithdrawVaultCollateral, "withdrawn")
}

func (s *Server) handleMakeAvailable(w http.ResponseWriter, r *http.Request) {
	s.callerAgentOp(w, r, s.deps.Agents.MakeAvailable, "available")
}

func (s *Server) handleExitAvailable(w http.ResponseWriter, r *http.Request) {
	s.callerAgentOp(w, r, s.deps.Agents.ExitAvailable, "unavailable")
}

func (s *Server) handleAnnounceDestroy(w http.ResponseWriter, r *http.Request) {
	s.callerAgentOp(w, r, s.deps.Agents.AnnounceDestroy, "destroy-announced")
}

func (s *Server) handleDestroyAgent(w http.ResponseWriter, r *http.Request) {
	s.callerAgentOp(w, r, s.deps.Agents.DestroyAgent, "destroyed")
}

func (s *Server) handleConfirmTopup(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string              `json:"caller"`
		Proof  paymentProofPayload `json:"proof"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	proof, err := payload.Proof.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Agents.ConfirmTopupPayment(caller, id, proof); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "topped-up"})
}

func (s *Server) handleSwitchVaultToken(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller   string `json:"caller"`
		NewToken string `json:"newToken"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Agents.SwitchVaultCollateral(caller, id, payload.NewToken); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "switched"})
}

func (s *Server) handleAgentSettings(w http.ResponseWriter, r *http.Request) {
	id, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
		Name   string `json:"name"`
		Value  uint64 `json:"value"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch strings.TrimSpace(payload.Name) {
	case "feeBIPS":
		err = s.deps.Agents.SetFeeBIPS(caller, id, payload.Value)
	case "poolFeeShareBIPS":
		err = s.deps.Agents.SetPoolFeeShareBIPS(caller, id, payload.Value)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown setting %q", payload.Name))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}
