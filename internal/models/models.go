package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationStatus represents the state of a storage operation
type OperationStatus string

const (
	OperationStatusQuoting   OperationStatus = "quoting"
	OperationStatusBridging  OperationStatus = "bridging"
	OperationStatusSwapping  OperationStatus = "swapping"
	OperationStatusStoring   OperationStatus = "storing"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// IsTerminal reports whether the status is a final state
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// stageRank orders the forward-only progression of operation statuses.
// failed is reachable from any non-terminal state.
var stageRank = map[OperationStatus]int{
	OperationStatusQuoting:   0,
	OperationStatusBridging:  1,
	OperationStatusSwapping:  2,
	OperationStatusStoring:   3,
	OperationStatusCompleted: 4,
	OperationStatusFailed:    5,
}

// CanAdvanceTo reports whether a transition from s to next is a legal
// forward move. A status never regresses and never leaves a terminal state.
func (s OperationStatus) CanAdvanceTo(next OperationStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OperationStatusFailed {
		return true
	}
	return stageRank[next] == stageRank[s]+1
}

// BridgeStatus represents the state of a bridge transfer
type BridgeStatus string

const (
	BridgeStatusPending    BridgeStatus = "pending"
	BridgeStatusInProgress BridgeStatus = "in_progress"
	BridgeStatusCompleted  BridgeStatus = "completed"
	BridgeStatusFailed     BridgeStatus = "failed"
)

// IsTerminal reports whether the bridge status is final
func (s BridgeStatus) IsTerminal() bool {
	return s == BridgeStatusCompleted || s == BridgeStatusFailed
}

// TokenPrice is a cached USD price observation for a token symbol
type TokenPrice struct {
	Symbol     string          `json:"symbol"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	ObservedAt time.Time       `json:"observed_at"`
	SourceName string          `json:"source_name"`
}

// StorageCost holds the storage-network component of a cost estimate,
// denominated in the two tokens the storage network requires.
type StorageCost struct {
	OutputTokenA     decimal.Decimal `json:"output_token_a"` // STOR, storage pricing token
	OutputTokenB     decimal.Decimal `json:"output_token_b"` // STASH, target-chain gas token
	RetentionPeriods int             `json:"retention_periods"`
	PayloadSizeKB    int64           `json:"payload_size_kb"`
}

// CostEstimate is a full quote for a cross-chain storage purchase.
// Immutable once returned.
type CostEstimate struct {
	StorageCost            StorageCost      `json:"storage_cost"`
	BridgeFee              decimal.Decimal  `json:"bridge_fee"` // in source token
	BridgeFeeUSD           decimal.Decimal  `json:"bridge_fee_usd"`
	SourceChainGasUSD      decimal.Decimal  `json:"source_chain_gas_usd"`
	TargetChainGasUSD      decimal.Decimal  `json:"target_chain_gas_usd"`
	ExchangeRate           decimal.Decimal  `json:"exchange_rate"` // source token price in USD
	SlippageTolerance      decimal.Decimal  `json:"slippage_tolerance"`
	EstimatedSlippage      decimal.Decimal  `json:"estimated_slippage"`
	TotalSourceTokenNeeded decimal.Decimal  `json:"total_source_token_needed"`
	TotalUSD               decimal.Decimal  `json:"total_usd"`
	WithinBudget           bool             `json:"within_budget"`
	BudgetCeiling          *decimal.Decimal `json:"budget_ceiling,omitempty"`
}

// BridgeReceipt tracks a single cross-chain value transfer. Mutated only by
// the bridge coordinator's monitor; terminal once completed or failed.
type BridgeReceipt struct {
	ID           string          `json:"id"`
	SourceChain  string          `json:"source_chain"`
	TargetChain  string          `json:"target_chain"`
	SourceTxHash string          `json:"source_tx_hash"`
	TargetTxHash *string         `json:"target_tx_hash,omitempty"`
	Attestation  []byte          `json:"attestation,omitempty"`
	Status       BridgeStatus    `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token"`
	Timestamp    time.Time       `json:"timestamp"`
	Error        *string         `json:"error,omitempty"`
}

// Clone returns a copy safe for read-only callers
func (r *BridgeReceipt) Clone() *BridgeReceipt {
	cp := *r
	if r.TargetTxHash != nil {
		v := *r.TargetTxHash
		cp.TargetTxHash = &v
	}
	if r.Attestation != nil {
		cp.Attestation = append([]byte(nil), r.Attestation...)
	}
	if r.Error != nil {
		v := *r.Error
		cp.Error = &v
	}
	return &cp
}

// SwapQuote is an advisory quote for converting one token into another.
// Recomputed on demand; never executed as-is without re-validation.
type SwapQuote struct {
	InputToken      string          `json:"input_token"`
	OutputToken     string          `json:"output_token"`
	InputAmount     decimal.Decimal `json:"input_amount"`
	EstimatedOutput decimal.Decimal `json:"estimated_output"`
	MinimumOutput   decimal.Decimal `json:"minimum_output"`
	PriceImpact     decimal.Decimal `json:"price_impact"`
	Route           []string        `json:"route"`
	Venues          []string        `json:"venues"`
	Slippage        decimal.Decimal `json:"slippage"`
}

// SwapResult is the one-time outcome of a swap execution attempt
type SwapResult struct {
	Success      bool            `json:"success"`
	TxHash       *string         `json:"tx_hash,omitempty"`
	InputToken   string          `json:"input_token"`
	OutputToken  string          `json:"output_token"`
	InputAmount  decimal.Decimal `json:"input_amount"`
	OutputAmount decimal.Decimal `json:"output_amount"`
	Error        *string         `json:"error,omitempty"`
}

// StorageReceipt records the storage network's acknowledgement of an upload
type StorageReceipt struct {
	BlobID           string `json:"blob_id"`
	StartEpoch       uint64 `json:"start_epoch"`
	EndEpoch         uint64 `json:"end_epoch"`
	SizeBytes        int64  `json:"size_bytes"`
	EncodedSizeBytes int64  `json:"encoded_size_bytes"`
	Deletable        bool   `json:"deletable"`
	AlreadyCertified bool   `json:"already_certified"`
}

// StorageProof holds the fields submitted to the origin-chain proof registry
type StorageProof struct {
	BlobID               string `json:"blob_id"`
	StoredEpoch          uint64 `json:"stored_epoch"`
	CertifiedEpoch       uint64 `json:"certified_epoch"`
	SizeBytes            int64  `json:"size_bytes"`
	EncodedUnitCount     int64  `json:"encoded_unit_count"`
	SourceTxHash         string `json:"source_tx_hash"`
	AttestationSignature []byte `json:"attestation_signature,omitempty"`
}

// StorageOperation is the aggregate record of one cross-chain storage
// purchase workflow. Owned exclusively by the orchestrator; each record is
// mutated only by the task driving it.
type StorageOperation struct {
	ID             string           `json:"id"`
	Status         OperationStatus  `json:"status"`
	CurrentStep    string           `json:"current_step"`
	SourceChain    string           `json:"source_chain"`
	CostEstimate   *CostEstimate    `json:"cost_estimate,omitempty"`
	BridgeReceipt  *BridgeReceipt   `json:"bridge_receipt,omitempty"`
	SwapResults    []SwapResult     `json:"swap_results,omitempty"`
	BlobID         *string          `json:"blob_id,omitempty"`
	StorageReceipt *StorageReceipt  `json:"storage_receipt,omitempty"`
	Proof          *StorageProof    `json:"proof,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Error          *string          `json:"error,omitempty"`
}

// Clone returns a deep enough copy for read-only callers. Nested pointers
// and slices are duplicated so a caller can never mutate the owned record.
func (op *StorageOperation) Clone() *StorageOperation {
	cp := *op
	if op.CostEstimate != nil {
		ce := *op.CostEstimate
		cp.CostEstimate = &ce
	}
	if op.BridgeReceipt != nil {
		br := *op.BridgeReceipt
		cp.BridgeReceipt = &br
	}
	if op.SwapResults != nil {
		cp.SwapResults = append([]SwapResult(nil), op.SwapResults...)
	}
	if op.StorageReceipt != nil {
		sr := *op.StorageReceipt
		cp.StorageReceipt = &sr
	}
	if op.Proof != nil {
		p := *op.Proof
		cp.Proof = &p
	}
	if op.BlobID != nil {
		id := *op.BlobID
		cp.BlobID = &id
	}
	if op.Error != nil {
		e := *op.Error
		cp.Error = &e
	}
	return &cp
}
