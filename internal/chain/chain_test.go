package chain

import (
	"math/big"
	"testing"
)

func TestSplitUnit(t *testing.T) {
	minUnit := "29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c64d494e"

	policy, name := SplitUnit(minUnit)
	if policy != "29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c6" {
		t.Errorf("policy = %s", policy)
	}
	if name != "4d494e" {
		t.Errorf("asset name = %s", name)
	}

	policy, name = SplitUnit(LovelaceUnit)
	if policy != "" || name != "" {
		t.Errorf("lovelace should split to empty components, got %s/%s", policy, name)
	}

	// policy-only unit (empty asset name)
	policy, name = SplitUnit("a04ce7a52545e5e33c2867e148898d9e667e69c1873d05b756e44dd5")
	if policy == "" || name != "" {
		t.Errorf("policy-only unit: %s/%s", policy, name)
	}
}

func TestFlowValid(t *testing.T) {
	f := &Flow{
		Unit: LovelaceUnit,
		In:   big.NewInt(1830000),
		Out:  big.NewInt(30000000),
		Net:  big.NewInt(-28170000),
	}
	if !f.Valid() {
		t.Error("conserved flow reported invalid")
	}

	f.Net = big.NewInt(0)
	if f.Valid() {
		t.Error("non-conserved flow reported valid")
	}

	f = &Flow{Unit: LovelaceUnit, In: big.NewInt(-1), Out: big.NewInt(0), Net: big.NewInt(-1)}
	if f.Valid() {
		t.Error("negative inflow reported valid")
	}
}

func TestParseEnums(t *testing.T) {
	for _, s := range []string{"send", "receive", "swap", "supply", "withdraw", "stake", "claim_rewards", "unknown"} {
		if _, err := ParseAction(s); err != nil {
			t.Errorf("ParseAction(%s) error = %v", s, err)
		}
	}
	if _, err := ParseAction("deposit"); err == nil {
		t.Error("ParseAction should reject unknown values")
	}

	for _, s := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
		if _, err := ParseJobStatus(s); err != nil {
			t.Errorf("ParseJobStatus(%s) error = %v", s, err)
		}
	}

	for _, s := range []string{"native", "fungible", "lp_token", "q_token", "governance", "stablecoin", "nft"} {
		if _, err := ParseTokenCategory(s); err != nil {
			t.Errorf("ParseTokenCategory(%s) error = %v", s, err)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if JobPending.Terminal() || JobProcessing.Terminal() {
		t.Error("active statuses must not be terminal")
	}
	if !JobCompleted.Terminal() || !JobFailed.Terminal() || !JobCancelled.Terminal() {
		t.Error("resting statuses must be terminal")
	}
}

func TestLookupPolicy(t *testing.T) {
	info, ok := LookupPolicy("29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c64d494e")
	if !ok || info.Protocol != ProtocolMinswap {
		t.Errorf("MIN policy lookup = %+v, %v", info, ok)
	}

	if _, ok := LookupPolicy(LovelaceUnit); ok {
		t.Error("lovelace must not resolve to a policy")
	}
	if _, ok := LookupPolicy("ffffffffffffffffffffffffffffffffffffffffffffffffffffffff00"); ok {
		t.Error("unknown policy should not resolve")
	}
}
