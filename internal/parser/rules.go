package parser

import (
	"sort"

	"github.com/adawatch/adasync/internal/chain"
)

// Rule is one categorization heuristic. Rules are pure functions of the
// transaction and its flows; the set is fixed at construction.
type Rule interface {
	Priority() int
	Matches(raw *chain.RawTransaction, flows []chain.Flow) bool
	Action(raw *chain.RawTransaction, flows []chain.Flow) chain.Action
	Protocol(flows []chain.Flow) chain.Protocol
}

// Categorizer runs rules in priority order; the first match wins.
type Categorizer struct {
	rules []Rule
}

// NewCategorizer builds the default rule set.
func NewCategorizer() *Categorizer {
	c := &Categorizer{
		rules: []Rule{
			protocolMarkerRule{},
			rewardWithdrawalRule{},
			swapShapeRule{},
			pureTransferRule{},
		},
	}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].Priority() > c.rules[j].Priority()
	})
	return c
}

// Categorize returns the action and protocol for a transaction. With no
// matching rule both come back unknown.
func (c *Categorizer) Categorize(raw *chain.RawTransaction, flows []chain.Flow) (chain.Action, chain.Protocol) {
	for _, r := range c.rules {
		if r.Matches(raw, flows) {
			return r.Action(raw, flows), r.Protocol(flows)
		}
	}
	return chain.ActionUnknown, chain.ProtocolUnknown
}

// protocolMarkerRule fires when any flow carries a token whose minting
// policy belongs to a known protocol. The flow's sign refines the action:
// receiving a qToken or LP token is a supply, sending one is a withdrawal,
// and a governance token moving against ADA is a swap.
type protocolMarkerRule struct{}

func (protocolMarkerRule) Priority() int { return 100 }

func (protocolMarkerRule) Matches(_ *chain.RawTransaction, flows []chain.Flow) bool {
	_, ok := markerFlow(flows)
	return ok
}

func (protocolMarkerRule) Action(_ *chain.RawTransaction, flows []chain.Flow) chain.Action {
	f, _ := markerFlow(flows)
	info, _ := chain.LookupPolicy(f.Unit)

	switch info.Category {
	case chain.CategoryQToken, chain.CategoryLPToken:
		if f.Net.Sign() > 0 {
			return chain.ActionSupply
		}
		return chain.ActionWithdraw
	}

	ada := NetAdaChange(flows)
	if ada.Sign() != 0 && ada.Sign() != f.Net.Sign() {
		return chain.ActionSwap
	}
	if f.Net.Sign() > 0 {
		return chain.ActionReceive
	}
	return chain.ActionSend
}

func (protocolMarkerRule) Protocol(flows []chain.Flow) chain.Protocol {
	f, _ := markerFlow(flows)
	info, _ := chain.LookupPolicy(f.Unit)
	return info.Protocol
}

// markerFlow returns the first flow carrying a known-policy token,
// preferring position receipts (qTokens, LP tokens) over governance tokens
// so lending and liquidity operations are not mislabeled as swaps.
func markerFlow(flows []chain.Flow) (*chain.Flow, bool) {
	var governance *chain.Flow
	for i := range flows {
		info, ok := chain.LookupPolicy(flows[i].Unit)
		if !ok || flows[i].Net.Sign() == 0 {
			continue
		}
		switch info.Category {
		case chain.CategoryQToken, chain.CategoryLPToken:
			return &flows[i], true
		default:
			if governance == nil {
				governance = &flows[i]
			}
		}
	}
	return governance, governance != nil
}

// rewardWithdrawalRule fires on stake-reward withdrawals. The parser trims
// withdrawals to the wallet's own before categorization.
type rewardWithdrawalRule struct{}

func (rewardWithdrawalRule) Priority() int { return 90 }

func (rewardWithdrawalRule) Matches(raw *chain.RawTransaction, _ []chain.Flow) bool {
	return len(raw.Withdrawals) > 0
}

func (rewardWithdrawalRule) Action(_ *chain.RawTransaction, _ []chain.Flow) chain.Action {
	return chain.ActionClaimRewards
}

func (rewardWithdrawalRule) Protocol(_ []chain.Flow) chain.Protocol {
	return chain.ProtocolUnknown
}

// swapShapeRule fires when two distinct non-ADA tokens move in opposite
// directions.
type swapShapeRule struct{}

func (swapShapeRule) Priority() int { return 80 }

func (swapShapeRule) Matches(_ *chain.RawTransaction, flows []chain.Flow) bool {
	pos, neg := false, false
	for i := range flows {
		if flows[i].Unit == chain.LovelaceUnit {
			continue
		}
		switch flows[i].Net.Sign() {
		case 1:
			pos = true
		case -1:
			neg = true
		}
	}
	return pos && neg
}

func (swapShapeRule) Action(_ *chain.RawTransaction, _ []chain.Flow) chain.Action {
	return chain.ActionSwap
}

func (swapShapeRule) Protocol(_ []chain.Flow) chain.Protocol {
	return chain.ProtocolUnknown
}

// pureTransferRule fires when only ADA moved.
type pureTransferRule struct{}

func (pureTransferRule) Priority() int { return 70 }

func (pureTransferRule) Matches(_ *chain.RawTransaction, flows []chain.Flow) bool {
	return len(flows) == 1 && flows[0].Unit == chain.LovelaceUnit
}

func (pureTransferRule) Action(_ *chain.RawTransaction, flows []chain.Flow) chain.Action {
	if flows[0].Net.Sign() >= 0 {
		return chain.ActionReceive
	}
	return chain.ActionSend
}

func (pureTransferRule) Protocol(_ []chain.Flow) chain.Protocol {
	return chain.ProtocolUnknown
}
