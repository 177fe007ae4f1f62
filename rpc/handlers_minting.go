package rpc

import (
	"fmt"
	"net/http"
)

func (s *Server) handleReserveCollateral(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Minter          string `json:"minter"`
		AgentID         string `json:"agentId"`
		Lots            uint64 `json:"lots"`
		MaxAgentFeeBIPS uint64 `json:"maxAgentFeeBIPS"`
		Executor        string `json:"executor"`
		ExecutorFeeWei  string `json:"executorFeeWei"`
		FeePaidWei      string `json:"feePaidWei"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minter, err := parseAddress(payload.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	agentID, err := parseAddress(payload.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	executor, err := parseOptionalAddress(payload.Executor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	executorFee, err := parseOptionalAmount(payload.ExecutorFeeWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	feePaid, err := parseAmount(payload.FeePaidWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cr, err := s.deps.Minting.ReserveCollateral(minter, agentID, payload.Lots, payload.MaxAgentFeeBIPS, executor, executorFee, feePaid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationView(cr))
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "reservationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cr, err := s.deps.State.GetReservation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cr == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("reservation not found"))
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(cr))
}

func (s *Server) handleExecuteMinting(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "reservationID")
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
	if err := s.deps.Minting.ExecuteMinting(caller, proof, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (s *Server) handleMintingDefault(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "reservationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string                 `json:"caller"`
		Proof  nonPaymentProofPayload `json:"proof"`
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
	if err := s.deps.Minting.MintingPaymentDefault(caller, proof, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "defaulted"})
}

func (s *Server) handleUnstickMinting(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "reservationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller  string                  `json:"caller"`
		Proof   blockHeightProofPayload `json:"proof"`
		PaidWei string                  `json:"paidWei"`
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
	paid, err := parseAmount(payload.PaidWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Minting.UnstickMinting(caller, payload.Proof.toProof(), id, paid); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unstuck"})
}

func (s *Server) handleSelfMint(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string              `json:"caller"`
		Proof  paymentProofPayload `json:"proof"`
		Lots   uint64              `json:"lots"`
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
	if err := s.deps.Minting.SelfMint(caller, proof, agentID, payload.Lots); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "self-minted"})
}
