package rpc

import (
	"fmt"
	"net/http"
)

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Redeemer          string `json:"redeemer"`
		Lots              uint64 `json:"lots"`
		UnderlyingAddress string `json:"underlyingAddress"`
		Executor          string `json:"executor"`
		ExecutorFeeWei    string `json:"executorFeeWei"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	redeemer, err := parseAddress(payload.Redeemer)
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
	requests, err := s.deps.Redemption.Redeem(redeemer, payload.Lots, payload.UnderlyingAddress, executor, executorFee)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, newRequestView(req))
	}
	writeJSON(w, http.StatusCreated, views)
}

func (s *Server) handleGetRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := s.deps.State.GetRequest(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("redemption request not found"))
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req))
}

func (s *Server) handleConfirmRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "requestID")
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
	if err := s.deps.Redemption.ConfirmRedemptionPayment(caller, proof, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (s *Server) handleRedemptionDefault(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "requestID")
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
	if err := s.deps.Redemption.RedemptionPaymentDefault(caller, proof, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "defaulted"})
}

func (s *Server) handleFinishRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string                  `json:"caller"`
		Proof  blockHeightProofPayload `json:"proof"`
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
	if err := s.deps.Redemption.FinishRedemptionWithoutPayment(caller, payload.Proof.toProof(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finished"})
}

func (s *Server) handleRejectRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := uint64Param(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller string                      `json:"caller"`
		Proof  addressValidityProofPayload `json:"proof"`
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
	if err := s.deps.Redemption.RejectRedemptionRequest(caller, payload.Proof.toProof(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleSelfClose(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Caller    string `json:"caller"`
		AmountUBA string `json:"amountUBA"`
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
	amount, err := parseAmount(payload.AmountUBA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	closed, err := s.deps.Redemption.SelfClose(caller, agentID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"closedUBA": formatBig(closed)})
}
