// Package parser turns raw chain transactions into wallet-centric records:
// it filters to the wallet's inputs and outputs, computes per-asset flows,
// categorizes the action, and enriches flows with token metadata.
package parser

import (
	"math/big"
	"sort"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/pkg/helpers"
)

// WalletRef identifies the wallet a transaction is parsed against.
type WalletRef struct {
	Address      string
	StakeAddress string // optional; enables reward-withdrawal matching
	OwnerUserID  string
}

// Filtered is a raw transaction reduced to the parts touching one wallet.
type Filtered struct {
	Relevant    bool
	Inputs      []chain.TxInput
	Outputs     []chain.TxOutput
	Withdrawals []chain.Withdrawal
}

// FilterForWallet reduces a raw transaction to the wallet's view. A
// transaction is relevant when the wallet appears in any input, any output,
// or any reward withdrawal.
func FilterForWallet(raw *chain.RawTransaction, w WalletRef) Filtered {
	var f Filtered

	for _, in := range raw.Inputs {
		if in.Address == w.Address {
			f.Inputs = append(f.Inputs, in)
		}
	}
	for _, out := range raw.Outputs {
		if out.Address == w.Address {
			f.Outputs = append(f.Outputs, out)
		}
	}
	if w.StakeAddress != "" {
		for _, wd := range raw.Withdrawals {
			if wd.Address == w.StakeAddress {
				f.Withdrawals = append(f.Withdrawals, wd)
			}
		}
	}

	f.Relevant = len(f.Inputs) > 0 || len(f.Outputs) > 0 || len(f.Withdrawals) > 0
	return f
}

// CalculateFlows aggregates the wallet's inputs and outputs into one flow
// per token unit. Spending from the wallet counts as outflow, receiving as
// inflow. Units untouched on both sides are dropped. Flows come back in a
// stable order with lovelace first.
func CalculateFlows(f Filtered) []chain.Flow {
	type tally struct {
		in  *big.Int
		out *big.Int
	}
	byUnit := make(map[string]*tally)

	add := func(unit, quantity string, inflow bool) {
		qty, err := helpers.ParseBase(quantity)
		if err != nil {
			return
		}
		t := byUnit[unit]
		if t == nil {
			t = &tally{in: new(big.Int), out: new(big.Int)}
			byUnit[unit] = t
		}
		if inflow {
			t.in.Add(t.in, qty)
		} else {
			t.out.Add(t.out, qty)
		}
	}

	for _, in := range f.Inputs {
		for _, a := range in.Amounts {
			add(a.Unit, a.Quantity, false)
		}
	}
	for _, out := range f.Outputs {
		for _, a := range out.Amounts {
			add(a.Unit, a.Quantity, true)
		}
	}

	flows := make([]chain.Flow, 0, len(byUnit))
	for unit, t := range byUnit {
		if t.in.Sign() == 0 && t.out.Sign() == 0 {
			continue
		}
		flows = append(flows, chain.Flow{
			Unit: unit,
			In:   t.in,
			Out:  t.out,
			Net:  new(big.Int).Sub(t.in, t.out),
		})
	}

	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Unit == chain.LovelaceUnit {
			return true
		}
		if flows[j].Unit == chain.LovelaceUnit {
			return false
		}
		return flows[i].Unit < flows[j].Unit
	})
	return flows
}

// NetAdaChange extracts the lovelace net from a flow set, zero if absent.
func NetAdaChange(flows []chain.Flow) *big.Int {
	for i := range flows {
		if flows[i].Unit == chain.LovelaceUnit {
			return flows[i].Net
		}
	}
	return new(big.Int)
}
