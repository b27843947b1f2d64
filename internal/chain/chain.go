// Package chain defines the Cardano domain types shared by the sync
// pipeline: raw chain data as returned by the indexer, wallet-relative
// asset flows, and the parsed wallet transaction record.
package chain

import "math/big"

// LovelaceUnit is the unit identifier for native ADA.
const LovelaceUnit = "lovelace"

// PolicyIDHexLen is the hex length of a minting policy id. A unit is the
// policy id concatenated with the hex asset name.
const PolicyIDHexLen = 56

// TokenAmount is a single (unit, quantity) pair inside an input or output.
// Quantity is a decimal string of base units.
type TokenAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// TxInput is a transaction input as resolved by the indexer.
// Collateral inputs are excluded before this type is constructed.
type TxInput struct {
	Address     string        `json:"address"`
	Amounts     []TokenAmount `json:"amount"`
	RefTxHash   string        `json:"tx_hash"`
	OutputIndex int           `json:"output_index"`
	DataHash    string        `json:"data_hash,omitempty"`
	ScriptHash  string        `json:"script_hash,omitempty"`
}

// TxOutput is a transaction output.
type TxOutput struct {
	Address     string        `json:"address"`
	Amounts     []TokenAmount `json:"amount"`
	OutputIndex int           `json:"output_index"`
	DataHash    string        `json:"data_hash,omitempty"`
	ScriptHash  string        `json:"script_hash,omitempty"`
}

// Withdrawal is a stake-reward withdrawal attached to a transaction.
type Withdrawal struct {
	Address    string `json:"address"` // stake address (stake1...)
	AmountBase string `json:"amount"`  // lovelace, decimal string
}

// RawTransaction is the fully hydrated transaction as fetched from the
// indexer: detail plus inputs/outputs plus withdrawals.
type RawTransaction struct {
	Hash        string       `json:"hash"`
	BlockHash   string       `json:"block"`
	BlockHeight int64        `json:"block_height"`
	BlockTime   int64        `json:"block_time"`
	Slot        int64        `json:"slot"`
	Fees        string       `json:"fees"` // lovelace, decimal string
	Inputs      []TxInput    `json:"inputs"`
	Outputs     []TxOutput   `json:"outputs"`
	Withdrawals []Withdrawal `json:"withdrawals"`
}

// Flow is the per-token in/out/net tuple for one wallet in one transaction.
// Invariant: Net = In - Out, In >= 0, Out >= 0.
type Flow struct {
	Unit  string   `json:"unit"`
	In    *big.Int `json:"in"`
	Out   *big.Int `json:"out"`
	Net   *big.Int `json:"net"`
	Token *Token   `json:"token,omitempty"`
}

// Valid reports whether the flow satisfies the conservation invariant.
func (f *Flow) Valid() bool {
	if f.In == nil || f.Out == nil || f.Net == nil {
		return false
	}
	if f.In.Sign() < 0 || f.Out.Sign() < 0 {
		return false
	}
	diff := new(big.Int).Sub(f.In, f.Out)
	return diff.Cmp(f.Net) == 0
}

// WalletTransaction is the persistable wallet-centric view of a raw
// transaction: filtered to the wallet, categorized and enriched.
type WalletTransaction struct {
	OwnerUserID   string   `json:"owner_user_id"`
	WalletAddress string   `json:"wallet_address"`
	TxHash        string   `json:"tx_hash"`
	BlockHeight   int64    `json:"block_height"`
	Timestamp     int64    `json:"timestamp"`
	Action        Action   `json:"action"`
	Protocol      Protocol `json:"protocol"`
	Description   string   `json:"description"`
	NetAdaChange  *big.Int `json:"net_ada_change"`
	Fees          *big.Int `json:"fees"`
	AssetFlows    []Flow   `json:"asset_flows"`
}

// SplitUnit splits a unit into (policyID, assetName). The lovelace unit
// and malformed short units return empty components.
func SplitUnit(unit string) (policyID, assetName string) {
	if unit == LovelaceUnit || len(unit) < PolicyIDHexLen {
		return "", ""
	}
	return unit[:PolicyIDHexLen], unit[PolicyIDHexLen:]
}
