package parser

import (
	"fmt"
	"math/big"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/pkg/helpers"
)

// Describe renders a deterministic human-readable summary of a categorized
// transaction. It is a pure function of its inputs.
func Describe(action chain.Action, protocol chain.Protocol, flows []chain.Flow) string {
	suffix := ""
	if name := protocolName(protocol); name != "" {
		suffix = " via " + name
	}

	switch action {
	case chain.ActionReceive:
		return "Receive " + flowAmount(primaryFlow(flows))
	case chain.ActionSend:
		return "Send " + flowAmount(primaryFlow(flows))
	case chain.ActionSwap:
		gave, got := swapLegs(flows)
		if gave != nil && got != nil {
			return fmt.Sprintf("Swap %s for %s%s", legAmount(gave, gave.Out), legAmount(got, got.In), suffix)
		}
		return "Swap" + suffix
	case chain.ActionSupply:
		if f := positionFlow(flows); f != nil {
			return "Supply liquidity for " + flowAmount(f) + suffix
		}
		return "Supply" + suffix
	case chain.ActionWithdraw:
		if f := positionFlow(flows); f != nil {
			return "Withdraw " + flowAmount(f) + suffix
		}
		return "Withdraw" + suffix
	case chain.ActionClaimRewards:
		if f := primaryFlow(flows); f != nil && f.Unit == chain.LovelaceUnit {
			return "Claim " + flowAmount(f) + " staking rewards"
		}
		return "Claim staking rewards"
	case chain.ActionStake:
		return "Stake delegation"
	}

	if len(flows) > 0 {
		return fmt.Sprintf("Transaction involving %d assets", len(flows))
	}
	return "Transaction"
}

// primaryFlow picks the flow the description leads with: the ADA flow when
// present, else the first flow.
func primaryFlow(flows []chain.Flow) *chain.Flow {
	if len(flows) == 0 {
		return nil
	}
	for i := range flows {
		if flows[i].Unit == chain.LovelaceUnit {
			return &flows[i]
		}
	}
	return &flows[0]
}

// positionFlow picks the non-ADA flow of a supply/withdraw pair.
func positionFlow(flows []chain.Flow) *chain.Flow {
	for i := range flows {
		if flows[i].Unit != chain.LovelaceUnit {
			return &flows[i]
		}
	}
	return primaryFlow(flows)
}

// swapLegs splits a swap into the leg the wallet gave and the leg it got.
func swapLegs(flows []chain.Flow) (gave, got *chain.Flow) {
	for i := range flows {
		switch flows[i].Net.Sign() {
		case -1:
			if gave == nil {
				gave = &flows[i]
			}
		case 1:
			if got == nil {
				got = &flows[i]
			}
		}
	}
	return gave, got
}

func flowAmount(f *chain.Flow) string {
	if f == nil {
		return "0"
	}
	return legAmount(f, new(big.Int).Abs(f.Net))
}

func legAmount(f *chain.Flow, amount *big.Int) string {
	decimals := uint8(0)
	ticker := ""
	if f.Token != nil {
		decimals = f.Token.Decimals
		ticker = f.Token.Ticker
	}
	if f.Unit == chain.LovelaceUnit {
		decimals, ticker = 6, "ADA"
	}
	if ticker == "" {
		ticker = helpers.UpperHex(helpers.ShortHex(f.Unit, 8))
	}
	return helpers.FormatUnits(amount, decimals) + " " + ticker
}

func protocolName(p chain.Protocol) string {
	switch p {
	case chain.ProtocolMinswap:
		return "Minswap"
	case chain.ProtocolLiqwid:
		return "Liqwid"
	}
	return ""
}
