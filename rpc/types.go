package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"bridgemint/core/types"
	"bridgemint/native/agents"
	nativecommon "bridgemint/native/common"
	"bridgemint/native/liquidation"
	"bridgemint/native/minting"
	"bridgemint/native/oracle"
	"bridgemint/native/redemption"
	"bridgemint/native/reference"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEngineError maps the engine sentinels to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, agents.ErrUnknownAgent),
		errors.Is(err, redemption.ErrUnknownAgent),
		errors.Is(err, liquidation.ErrUnknownAgent),
		errors.Is(err, minting.ErrUnknownReservation),
		errors.Is(err, redemption.ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, agents.ErrNotOwner),
		errors.Is(err, minting.ErrNotAuthorized),
		errors.Is(err, redemption.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, agents.ErrAgentExists):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrPriceUnknown), errors.Is(err, oracle.ErrPriceStale):
		status = http.StatusFailedDependency
	default:
		// Domain violations surface as bad requests; only infrastructure
		// failures should reach 500.
		if isEngineSentinel(err) {
			status = http.StatusBadRequest
		}
	}
	writeError(w, status, err)
}

func isEngineSentinel(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"agents engine: ",
		"minting engine: ",
		"redemption engine: ",
		"liquidation engine: ",
		"collateral: ",
		"oracle: ",
		"pause: ",
		"rate limit: ",
		"params: ",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 hex bytes")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("address must be hex encoded")
	}
	copy(addr[:], decoded)
	return addr, nil
}

// parseOptionalAddress accepts an empty string as the zero address.
func parseOptionalAddress(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(raw)
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount missing")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a decimal integer")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

// parseOptionalAmount accepts an empty string as zero.
func parseOptionalAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(raw)
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseReference(raw string) (reference.Reference, error) {
	ref, err := reference.FromHex(raw)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("payment reference: %w", err)
	}
	return ref, nil
}

// --- Proof payloads ---

type paymentProofPayload struct {
	TransactionHash  string `json:"transactionHash"`
	SourceAddress    string `json:"sourceAddress"`
	ReceivingAddress string `json:"receivingAddress"`
	Reference        string `json:"reference"`
	ReceivedUBA      string `json:"receivedUBA"`
	SpentUBA         string `json:"spentUBA"`
	Status           string `json:"status"`
	BlockNumber      uint64 `json:"blockNumber"`
	BlockTimestamp   uint64 `json:"blockTimestamp"`
}

func (p paymentProofPayload) toProof() (oracle.PaymentProof, error) {
	ref, err := parseReference(p.Reference)
	if err != nil {
		return oracle.PaymentProof{}, err
	}
	received, err := parseOptionalAmount(p.ReceivedUBA)
	if err != nil {
		return oracle.PaymentProof{}, fmt.Errorf("receivedUBA: %w", err)
	}
	spent, err := parseOptionalAmount(p.SpentUBA)
	if err != nil {
		return oracle.PaymentProof{}, fmt.Errorf("spentUBA: %w", err)
	}
	var status oracle.PaymentStatus
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "", "success":
		status = oracle.PaymentSuccess
	case "failed":
		status = oracle.PaymentFailed
	case "blocked":
		status = oracle.PaymentBlocked
	default:
		return oracle.PaymentProof{}, fmt.Errorf("unknown payment status %q", p.Status)
	}
	return oracle.PaymentProof{
		TransactionHash:  p.TransactionHash,
		SourceAddress:    p.SourceAddress,
		ReceivingAddress: p.ReceivingAddress,
		Reference:        ref,
		ReceivedUBA:      received,
		SpentUBA:         spent,
		Status:           status,
		BlockNumber:      p.BlockNumber,
		BlockTimestamp:   p.BlockTimestamp,
	}, nil
}

type nonPaymentProofPayload struct {
	DestinationAddress     string `json:"destinationAddress"`
	Reference              string `json:"reference"`
	AmountUBA              string `json:"amountUBA"`
	FirstCheckedBlock      uint64 `json:"firstCheckedBlock"`
	LastCheckedBlock       uint64 `json:"lastCheckedBlock"`
	LastCheckedTimestamp   uint64 `json:"lastCheckedTimestamp"`
	LowestQueryWindowBlock uint64 `json:"lowestQueryWindowBlock"`
}

func (p nonPaymentProofPayload) toProof() (oracle.NonPaymentProof, error) {
	ref, err := parseReference(p.Reference)
	if err != nil {
		return oracle.NonPaymentProof{}, err
	}
	amount, err := parseAmount(p.AmountUBA)
	if err != nil {
		return oracle.NonPaymentProof{}, fmt.Errorf("amountUBA: %w", err)
	}
	return oracle.NonPaymentProof{
		DestinationAddress:     p.DestinationAddress,
		Reference:              ref,
		AmountUBA:              amount,
		FirstCheckedBlock:      p.FirstCheckedBlock,
		LastCheckedBlock:       p.LastCheckedBlock,
		LastCheckedTimestamp:   p.LastCheckedTimestamp,
		LowestQueryWindowBlock: p.LowestQueryWindowBlock,
	}, nil
}

type balanceDecreasingProofPayload struct {
	TransactionHash string `json:"transactionHash"`
	SourceAddress   string `json:"sourceAddress"`
	SpentUBA        string `json:"spentUBA"`
	Reference       string `json:"reference"`
	BlockNumber     uint64 `json:"blockNumber"`
	BlockTimestamp  uint64 `json:"blockTimestamp"`
}

func (p balanceDecreasingProofPayload) toProof() (oracle.BalanceDecreasingProof, error) {
	var ref reference.Reference
	if strings.TrimSpace(p.Reference) != "" {
		parsed, err := parseReference(p.Reference)
		if err != nil {
			return oracle.BalanceDecreasingProof{}, err
		}
		ref = parsed
	}
	spent, err := parseAmount(p.SpentUBA)
	if err != nil {
		return oracle.BalanceDecreasingProof{}, fmt.Errorf("spentUBA: %w", err)
	}
	return oracle.BalanceDecreasingProof{
		TransactionHash: p.TransactionHash,
		SourceAddress:   p.SourceAddress,
		SpentUBA:        spent,
		Reference:       ref,
		BlockNumber:     p.BlockNumber,
		BlockTimestamp:  p.BlockTimestamp,
	}, nil
}

type blockHeightProofPayload struct {
	BlockNumber                uint64 `json:"blockNumber"`
	BlockTimestamp             uint64 `json:"blockTimestamp"`
	NumberOfConfirmations      uint64 `json:"numberOfConfirmations"`
	LowestQueryWindowBlock     uint64 `json:"lowestQueryWindowBlock"`
	LowestQueryWindowTimestamp uint64 `json:"lowestQueryWindowTimestamp"`
}

func (p blockHeightProofPayload) toProof() oracle.BlockHeightProof {
	return oracle.BlockHeightProof{
		BlockNumber:                p.BlockNumber,
		BlockTimestamp:             p.BlockTimestamp,
		NumberOfConfirmations:      p.NumberOfConfirmations,
		LowestQueryWindowBlock:     p.LowestQueryWindowBlock,
		LowestQueryWindowTimestamp: p.LowestQueryWindowTimestamp,
	}
}

type addressValidityProofPayload struct {
	Address         string `json:"address"`
	IsValid         bool   `json:"isValid"`
	StandardAddress string `json:"standardAddress"`
}

func (p addressValidityProofPayload) toProof() oracle.AddressValidityProof {
	return oracle.AddressValidityProof{
		Address:         p.Address,
		IsValid:         p.IsValid,
		StandardAddress: p.StandardAddress,
	}
}

// --- Views ---

type agentView struct {
	ID                 string `json:"id"`
	Owner              string `json:"owner"`
	UnderlyingAddress  string `json:"underlyingAddress"`
	Status             string `json:"status"`
	PubliclyAvailable  bool   `json:"publiclyAvailable"`
	VaultToken         string `json:"vaultToken"`
	VaultCollateralWei string `json:"vaultCollateralWei"`
	PoolCollateralWei  string `json:"poolCollateralWei"`
	AgentPoolTokensWei string `json:"agentPoolTokensWei"`
	MintedAMG          string `json:"mintedAMG"`
	ReservedAMG        string `json:"reservedAMG"`
	RedeemingAMG       string `json:"redeemingAMG"`
	FreeUnderlyingUBA  string `json:"freeUnderlyingUBA"`
	FeeBIPS            uint64 `json:"feeBIPS"`
	PoolFeeShareBIPS   uint64 `json:"poolFeeShareBIPS"`
	CreatedAt          int64  `json:"createdAt"`
}

func newAgentView(agent *types.Agent) agentView {
	return agentView{
		ID:                 formatAddress(agent.ID),
		Owner:              formatAddress(agent.Owner),
		UnderlyingAddress:  agent.UnderlyingAddress,
		Status:             agent.Status.String(),
		PubliclyAvailable:  agent.PubliclyAvailable,
		VaultToken:         agent.VaultToken,
		VaultCollateralWei: formatBig(agent.VaultCollateralWei),
		PoolCollateralWei:  formatBig(agent.PoolCollateralWei),
		AgentPoolTokensWei: formatBig(agent.AgentPoolTokensWei),
		MintedAMG:          formatBig(agent.MintedAMG),
		ReservedAMG:        formatBig(agent.ReservedAMG),
		RedeemingAMG:       formatBig(agent.RedeemingAMG),
		FreeUnderlyingUBA:  formatBig(agent.FreeUnderlyingUBA),
		FeeBIPS:            agent.FeeBIPS,
		PoolFeeShareBIPS:   agent.PoolFeeShareBIPS,
		CreatedAt:          agent.CreatedAt,
	}
}

type reservationView struct {
	ID                      uint64 `json:"id"`
	AgentID                 string `json:"agentId"`
	Minter                  string `json:"minter"`
	Executor                string `json:"executor,omitempty"`
	ExecutorFeeWei          string `json:"executorFeeWei"`
	Lots                    uint64 `json:"lots"`
	ValueUBA                string `json:"valueUBA"`
	FeeUBA                  string `json:"feeUBA"`
	ReservationFeeWei       string `json:"reservationFeeWei"`
	PaymentReference        string `json:"paymentReference"`
	FirstUnderlyingBlock    uint64 `json:"firstUnderlyingBlock"`
	LastUnderlyingBlock     uint64 `json:"lastUnderlyingBlock"`
	LastUnderlyingTimestamp uint64 `json:"lastUnderlyingTimestamp"`
	CreatedAt               int64  `json:"createdAt"`
}

func newReservationView(cr *minting.CollateralReservation) reservationView {
	view := reservationView{
		ID:                      cr.ID,
		AgentID:                 formatAddress(cr.AgentID),
		Minter:                  formatAddress(cr.Minter),
		ExecutorFeeWei:          formatBig(cr.ExecutorFeeWei),
		Lots:                    cr.Lots,
		ValueUBA:                formatBig(cr.ValueUBA),
		FeeUBA:                  formatBig(cr.FeeUBA),
		ReservationFeeWei:       formatBig(cr.ReservationFeeWei),
		PaymentReference:        cr.PaymentReference.Hex(),
		FirstUnderlyingBlock:    cr.FirstUnderlyingBlock,
		LastUnderlyingBlock:     cr.LastUnderlyingBlock,
		LastUnderlyingTimestamp: cr.LastUnderlyingTimestamp,
		CreatedAt:               cr.CreatedAt,
	}
	if cr.Executor != ([20]byte{}) {
		view.Executor = formatAddress(cr.Executor)
	}
	return view
}

type requestView struct {
	ID                      uint64 `json:"id"`
	AgentID                 string `json:"agentId"`
	Redeemer                string `json:"redeemer"`
	UnderlyingAddress       string `json:"underlyingAddress"`
	ValueUBA                string `json:"valueUBA"`
	FeeUBA                  string `json:"feeUBA"`
	PaymentValueUBA         string `json:"paymentValueUBA"`
	PaymentReference        string `json:"paymentReference"`
	FirstUnderlyingBlock    uint64 `json:"firstUnderlyingBlock"`
	LastUnderlyingBlock     uint64 `json:"lastUnderlyingBlock"`
	LastUnderlyingTimestamp uint64 `json:"lastUnderlyingTimestamp"`
	Executor                string `json:"executor,omitempty"`
	ExecutorFeeWei          string `json:"executorFeeWei"`
	Status                  string `json:"status"`
	CreatedAt               int64  `json:"createdAt"`
}

func newRequestView(req *redemption.RedemptionRequest) requestView {
	view := requestView{
		ID:                      req.ID,
		AgentID:                 formatAddress(req.AgentID),
		Redeemer:                formatAddress(req.Redeemer),
		UnderlyingAddress:       req.UnderlyingAddress,
		ValueUBA:                formatBig(req.ValueUBA),
		FeeUBA:                  formatBig(req.FeeUBA),
		PaymentValueUBA:         formatBig(req.PaymentValueUBA()),
		PaymentReference:        req.PaymentReference.Hex(),
		FirstUnderlyingBlock:    req.FirstUnderlyingBlock,
		LastUnderlyingBlock:     req.LastUnderlyingBlock,
		LastUnderlyingTimestamp: req.LastUnderlyingTimestamp,
		ExecutorFeeWei:          formatBig(req.ExecutorFeeWei),
		Status:                  req.Status.String(),
		CreatedAt:               req.CreatedAt,
	}
	if req.Executor != ([20]byte{}) {
		view.Executor = formatAddress(req.Executor)
	}
	return view
}
