// backend/src/services/interfaces.go
package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/models"
)

// IncomeStore is the data-access surface the income side of the core reads
// and writes through. Schema ownership and migrations live with the
// implementation, not here.
type IncomeStore interface {
	// FetchTransactions returns the user's normalized transactions. A nil
	// bound leaves that side of the date range open.
	FetchTransactions(userID int64, from, to *time.Time) ([]models.Transaction, error)

	FetchActiveIncomeRecords(userID int64) ([]models.RecurringIncomeRecord, error)

	// SupersedeAndCreateIncomeRecord atomically closes any active income
	// record for the user and creates the new one. There must be no window
	// where zero or two active records exist; a concurrent writer surfaces as
	// models.ErrPersistenceConflict.
	SupersedeAndCreateIncomeRecord(userID int64, record models.RecurringIncomeRecord) (models.RecurringIncomeRecord, error)
}

// GoalStore is the data-access surface for goals, their account links, and
// the per-goal sync and notification watermarks.
type GoalStore interface {
	CreateGoal(goal *models.Goal) error
	UpdateGoal(goal *models.Goal) error
	DeactivateGoal(goalID int64) error
	FetchGoal(goalID int64) (models.Goal, error)
	FetchGoalsForUser(userID int64) ([]models.Goal, error)
	UpdateGoalCurrentAmount(goalID int64, amount decimal.Decimal) error

	LinkGoalAccount(link models.GoalAccountLink) error
	FetchGoalAccountLinks(goalID int64) ([]models.GoalAccountLink, error)
	FetchAccountsForUser(userID int64) ([]models.Account, error)

	FetchGoalSyncState(goalID int64) (models.GoalSyncState, error)
	RecordGoalSyncState(state models.GoalSyncState) error

	FetchLastNotifiedState(goalID int64) (models.NotifiedState, error)
	RecordNotifiedState(state models.NotifiedState) error
}
