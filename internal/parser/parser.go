package parser

import (
	"context"

	"github.com/adawatch/adasync/internal/chain"
	"github.com/adawatch/adasync/internal/token"
	"github.com/adawatch/adasync/pkg/helpers"
	"github.com/adawatch/adasync/pkg/logging"
)

// TokenResolver resolves token metadata for flow enrichment.
type TokenResolver interface {
	GetMany(ctx context.Context, units []string) (map[string]*chain.Token, error)
	RegisterDiscovered(ctx context.Context, unit string, category chain.TokenCategory) error
}

// Parser composes the wallet filter, the flow calculator, the categorizer,
// and the token registry into one parse step.
type Parser struct {
	tokens TokenResolver
	rules  *Categorizer
	log    *logging.Logger
}

// New creates a parser with the default rule set.
func New(tokens TokenResolver, log *logging.Logger) *Parser {
	return &Parser{
		tokens: tokens,
		rules:  NewCategorizer(),
		log:    log.Component("parser"),
	}
}

// Parse converts a raw transaction into the wallet's persistable record.
// It returns nil only when the transaction does not touch the wallet.
// Enrichment failures degrade to synthetic token records; they never fail
// the parse.
func (p *Parser) Parse(ctx context.Context, raw *chain.RawTransaction, w WalletRef) *chain.WalletTransaction {
	filtered := FilterForWallet(raw, w)
	if !filtered.Relevant {
		return nil
	}

	flows := CalculateFlows(filtered)
	p.enrich(ctx, flows)

	// categorization sees only the wallet's own withdrawals
	trimmed := *raw
	trimmed.Withdrawals = filtered.Withdrawals
	action, protocol := p.rules.Categorize(&trimmed, flows)

	p.noteDiscoveries(ctx, flows)

	return &chain.WalletTransaction{
		OwnerUserID:   w.OwnerUserID,
		WalletAddress: w.Address,
		TxHash:        raw.Hash,
		BlockHeight:   raw.BlockHeight,
		Timestamp:     raw.BlockTime,
		Action:        action,
		Protocol:      protocol,
		Description:   Describe(action, protocol, flows),
		NetAdaChange:  NetAdaChange(flows),
		Fees:          helpers.ParseBaseOrZero(raw.Fees),
		AssetFlows:    flows,
	}
}

func (p *Parser) enrich(ctx context.Context, flows []chain.Flow) {
	if len(flows) == 0 {
		return
	}

	units := make([]string, len(flows))
	for i := range flows {
		units[i] = flows[i].Unit
	}

	tokens, err := p.tokens.GetMany(ctx, units)
	if err != nil {
		p.log.Warn("token enrichment degraded", "units", len(units), "error", err)
		tokens = nil
	}
	for i := range flows {
		if tok := tokens[flows[i].Unit]; tok != nil {
			flows[i].Token = tok
		} else {
			flows[i].Token = token.Synthetic(flows[i].Unit)
		}
	}
}

// noteDiscoveries flags tokens whose minting policy implies a protocol role
// the registry record does not reflect yet. Informational only; it never
// changes the categorization of the transaction in flight.
func (p *Parser) noteDiscoveries(ctx context.Context, flows []chain.Flow) {
	for i := range flows {
		f := &flows[i]
		info, known := chain.LookupPolicy(f.Unit)
		if !known || f.Token == nil || f.Token.Category == info.Category {
			continue
		}
		if err := p.tokens.RegisterDiscovered(ctx, f.Unit, info.Category); err != nil {
			p.log.Debug("token discovery hook failed",
				"unit", helpers.ShortHash(f.Unit), "error", err)
		}
	}
}
