package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a normalized bank transaction as delivered by the
// aggregation layer. Amounts are signed: positive = inflow into the account.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PostedDate     time.Time       `json:"posted_date"`
	MerchantName   string          `json:"merchant_name,omitempty"`
	RawDescription string          `json:"raw_description"`
	Category       string          `json:"category,omitempty"`
	Pending        bool            `json:"pending"`
}

// Account is a linked bank account with its last synced balance.
type Account struct {
	ID       string          `json:"id"`
	UserID   int64           `json:"user_id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"` // e.g. "checking", "savings"
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	SyncedAt time.Time       `json:"synced_at"`
}

// GoalAccountLink ties a goal to a funding account. AllocationFraction is the
// share of the account balance counted toward the goal (1.0 for a dedicated
// account, less for shared accounts).
type GoalAccountLink struct {
	GoalID             int64           `json:"goal_id"`
	AccountID          string          `json:"account_id"`
	AllocationFraction decimal.Decimal `json:"allocation_fraction"`
}
