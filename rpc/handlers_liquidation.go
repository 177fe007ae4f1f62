package rpc

import (
	"fmt"
	"net/http"

	"bridgemint/native/oracle"
)

func (s *Server) handleChallengeIllegalPayment(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Challenger string                        `json:"challenger"`
		Proof      balanceDecreasingProofPayload `json:"proof"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	challenger, err := parseAddress(payload.Challenger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	proof, err := payload.Proof.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Liquidation.ChallengeIllegalPayment(challenger, agentID, proof); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "challenge-confirmed"})
}

func (s *Server) handleChallengeDoublePayment(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Challenger string                        `json:"challenger"`
		First      balanceDecreasingProofPayload `json:"first"`
		Second     balanceDecreasingProofPayload `json:"second"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	challenger, err := parseAddress(payload.Challenger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	first, err := payload.First.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	second, err := payload.Second.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Liquidation.ChallengeDoublePayment(challenger, agentID, first, second); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "challenge-confirmed"})
}

func (s *Server) handleChallengeNegativeBalance(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Challenger string                          `json:"challenger"`
		Proofs     []balanceDecreasingProofPayload `json:"proofs"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	challenger, err := parseAddress(payload.Challenger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(payload.Proofs) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("proofs missing"))
		return
	}
	proofs := make([]oracle.BalanceDecreasingProof, 0, len(payload.Proofs))
	for _, raw := range payload.Proofs {
		proof, err := raw.toProof()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		proofs = append(proofs, proof)
	}
	if err := s.deps.Liquidation.ChallengeFreeBalanceNegative(challenger, agentID, proofs); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "challenge-confirmed"})
}

func (s *Server) handleStartLiquidation(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Liquidation.StartLiquidation(agentID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "liquidation-started"})
}

func (s *Server) handleEndLiquidation(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Liquidation.EndLiquidation(agentID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "liquidation-ended"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Liquidator string `json:"liquidator"`
		AmountUBA  string `json:"amountUBA"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	liquidator, err := parseAddress(payload.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.AmountUBA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	burned, err := s.deps.Liquidation.Liquidate(liquidator, agentID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"burnedUBA": formatBig(burned)})
}
