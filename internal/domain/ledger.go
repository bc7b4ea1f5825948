package domain

import "time"

// LedgerAsset is the balance a ledger entry moves.
type LedgerAsset string

const (
	AssetTokens     LedgerAsset = "tokens"
	AssetReputation LedgerAsset = "reputation"
	AssetTokenFund  LedgerAsset = "token_fund"
)

// LedgerKind names the engine step that produced an entry.
type LedgerKind string

const (
	LedgerInitialGrant      LedgerKind = "initial_grant"
	LedgerContributionFee   LedgerKind = "contribution_fee"
	LedgerFundSeed          LedgerKind = "fund_seed"
	LedgerEvaluatorTokens   LedgerKind = "evaluator_token_reward"
	LedgerEvaluationFee     LedgerKind = "evaluation_fee"
	LedgerAgreementReward   LedgerKind = "agreement_reward"
	LedgerContributorReward LedgerKind = "contributor_reward"
	LedgerReferralReward    LedgerKind = "referral_reward"
)

// LedgerEntry records one signed movement of an asset. Entries for the
// token fund carry the contribution and no user.
type LedgerEntry struct {
	ID             int64                  `db:"id" json:"id"`
	UserID         *int64                 `db:"user_id" json:"user_id,omitempty"`
	ContributionID *int64                 `db:"contribution_id" json:"contribution_id,omitempty"`
	EvaluationID   *int64                 `db:"evaluation_id" json:"evaluation_id,omitempty"`
	Kind           LedgerKind             `db:"kind" json:"kind"`
	Asset          LedgerAsset            `db:"asset" json:"asset"`
	Amount         float64                `db:"amount" json:"amount"`
	Meta           map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
}

// EconomyTotals is a point-in-time summary of every balance in the system.
type EconomyTotals struct {
	Users                int     `json:"users"`
	Contributions        int     `json:"contributions"`
	ActiveEvaluations    int     `json:"active_evaluations"`
	TotalReputation      float64 `json:"total_reputation"`
	TotalTokens          float64 `json:"total_tokens"`
	OutstandingTokenFund float64 `json:"outstanding_token_fund"`
}
