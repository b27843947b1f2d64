package chain

// Token holds registry metadata for one asset unit.
type Token struct {
	Unit      string        `json:"unit"`
	PolicyID  string        `json:"policy_id"`
	AssetName string        `json:"asset_name"`
	Name      string        `json:"name,omitempty"`
	Ticker    string        `json:"ticker,omitempty"`
	Decimals  uint8         `json:"decimals"`
	Category  TokenCategory `json:"category"`
	Logo      string        `json:"logo,omitempty"`
	Metadata  string        `json:"metadata,omitempty"` // raw JSON blob from the indexer
}

// NativeADA is the fixed registry record for lovelace. It resolves without
// any I/O.
func NativeADA() *Token {
	return &Token{
		Unit:     LovelaceUnit,
		Name:     "Cardano",
		Ticker:   "ADA",
		Decimals: 6,
		Category: CategoryNative,
	}
}

// PolicyInfo describes a minting policy with known protocol significance.
type PolicyInfo struct {
	Protocol Protocol
	Category TokenCategory
}

// KnownPolicies maps minting policy ids to the protocol and token category
// they imply. The set is closed at process start; the categorizer and the
// token registry both consult it.
var KnownPolicies = map[string]PolicyInfo{
	// Minswap MIN governance token
	"29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c6": {
		Protocol: ProtocolMinswap,
		Category: CategoryGovernance,
	},
	// Minswap LP tokens
	"e4214b7cce62ac6fbba385d164df48e157eae5863521b4b67ca71d86": {
		Protocol: ProtocolMinswap,
		Category: CategoryLPToken,
	},
	// Liqwid LQ governance token
	"da8c30857834c6ae7203935b89278c532b3995245295456f993e1d24": {
		Protocol: ProtocolLiqwid,
		Category: CategoryGovernance,
	},
	// Liqwid qTokens (interest-bearing supply receipts)
	"a04ce7a52545e5e33c2867e148898d9e667e69c1873d05b756e44dd5": {
		Protocol: ProtocolLiqwid,
		Category: CategoryQToken,
	},
}

// LookupPolicy returns protocol info for a unit's minting policy, if known.
func LookupPolicy(unit string) (PolicyInfo, bool) {
	policyID, _ := SplitUnit(unit)
	if policyID == "" {
		return PolicyInfo{}, false
	}
	info, ok := KnownPolicies[policyID]
	return info, ok
}
