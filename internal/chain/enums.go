package chain

import "fmt"

// Action is the semantic label for what the wallet did in a transaction.
type Action string

const (
	ActionSend         Action = "send"
	ActionReceive      Action = "receive"
	ActionSwap         Action = "swap"
	ActionSupply       Action = "supply"
	ActionWithdraw     Action = "withdraw"
	ActionStake        Action = "stake"
	ActionClaimRewards Action = "claim_rewards"
	ActionUnknown      Action = "unknown"
)

// ParseAction converts a stored string into an Action. Unrecognized values
// are an error so schema drift is caught at the read path.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionSend, ActionReceive, ActionSwap, ActionSupply,
		ActionWithdraw, ActionStake, ActionClaimRewards, ActionUnknown:
		return Action(s), nil
	}
	return ActionUnknown, fmt.Errorf("unknown action: %q", s)
}

// Protocol is the DeFi protocol a transaction touched, if any.
type Protocol string

const (
	ProtocolMinswap Protocol = "minswap"
	ProtocolLiqwid  Protocol = "liqwid"
	ProtocolUnknown Protocol = "unknown"
)

// ParseProtocol converts a stored string into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolMinswap, ProtocolLiqwid, ProtocolUnknown:
		return Protocol(s), nil
	}
	return ProtocolUnknown, fmt.Errorf("unknown protocol: %q", s)
}

// TokenCategory classifies a token for display and categorization rules.
type TokenCategory string

const (
	CategoryNative     TokenCategory = "native"
	CategoryFungible   TokenCategory = "fungible"
	CategoryLPToken    TokenCategory = "lp_token"
	CategoryQToken     TokenCategory = "q_token"
	CategoryGovernance TokenCategory = "governance"
	CategoryStablecoin TokenCategory = "stablecoin"
	CategoryNFT        TokenCategory = "nft"
)

// ParseTokenCategory converts a stored string into a TokenCategory.
func ParseTokenCategory(s string) (TokenCategory, error) {
	switch TokenCategory(s) {
	case CategoryNative, CategoryFungible, CategoryLPToken, CategoryQToken,
		CategoryGovernance, CategoryStablecoin, CategoryNFT:
		return TokenCategory(s), nil
	}
	return CategoryFungible, fmt.Errorf("unknown token category: %q", s)
}

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ParseJobStatus converts a stored string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobCancelled:
		return JobStatus(s), nil
	}
	return JobFailed, fmt.Errorf("unknown job status: %q", s)
}

// Terminal reports whether the status is a resting terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}
