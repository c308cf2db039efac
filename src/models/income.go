package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cadence is the classified repetition interval of a recurring series.
type Cadence string

const (
	CadenceWeekly      Cadence = "weekly"
	CadenceBiweekly    Cadence = "biweekly"
	CadenceSemimonthly Cadence = "semimonthly"
	CadenceMonthly     Cadence = "monthly"
	CadenceIrregular   Cadence = "irregular"
)

// MonthlyFactor converts one occurrence at this cadence into a monthly
// equivalent. Irregular cadences have no monthly equivalent and return zero.
func (c Cadence) MonthlyFactor() decimal.Decimal {
	switch c {
	case CadenceWeekly:
		return decimal.NewFromFloat(4.33)
	case CadenceBiweekly:
		return decimal.NewFromFloat(2.17)
	case CadenceSemimonthly:
		return decimal.NewFromInt(2)
	case CadenceMonthly:
		return decimal.NewFromInt(1)
	default:
		return decimal.Zero
	}
}

// RecurringSeries is a cluster of transactions believed to be repeated
// instances of the same payment. Members are ordered by posted date and
// IntervalsDays holds the day gaps between consecutive members, so
// len(IntervalsDays) == len(Members)-1.
type RecurringSeries struct {
	RepresentativeAmount decimal.Decimal `json:"representative_amount"`
	AmountToleranceRatio float64         `json:"amount_tolerance_ratio"`
	Cadence              Cadence         `json:"cadence"`
	Members              []Transaction   `json:"members"`
	IntervalsDays        []int           `json:"intervals_days"`
}

// RecurringSeriesSummary is the caller-facing view of a qualifying series.
type RecurringSeriesSummary struct {
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount"`
	Cadence        Cadence         `json:"cadence"`
	Occurrences    int             `json:"occurrences"`
	Confidence     int             `json:"confidence"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	TransactionIDs []string        `json:"transaction_ids"`
}

// IncomeDetectionDetails lists every qualifying series so callers that want to
// sum multiple income sources can do so explicitly.
type IncomeDetectionDetails struct {
	RecurringDeposits []RecurringSeriesSummary `json:"recurring_deposits"`
}

// IncomeDetectionResult is the outcome of a detection pass. MonthlyIncome is
// zero exactly when no qualifying series was found, and Confidence is only
// meaningful when MonthlyIncome is positive.
type IncomeDetectionResult struct {
	MonthlyIncome decimal.Decimal        `json:"monthly_income"`
	Confidence    int                    `json:"confidence"`
	Source        string                 `json:"source"`
	Details       IncomeDetectionDetails `json:"details"`
}

// Income record lifecycle statuses. A detection below the auto-persist
// confidence threshold surfaces as pending_confirmation; confirming it (or a
// manual declaration) creates a confirmed record; confirming a newer record
// marks the old one superseded.
const (
	IncomeStatusPendingConfirmation = "pending_confirmation"
	IncomeStatusConfirmed           = "confirmed"
	IncomeStatusSuperseded          = "superseded"
)

// Income record origins.
const (
	IncomeSourceDetected = "detected"
	IncomeSourceManual   = "manual"
)

// RecurringIncomeRecord is the persisted income declaration for a user. It is
// active while EffectiveTo is nil or in the future; superseding sets
// EffectiveTo instead of deleting, preserving history.
type RecurringIncomeRecord struct {
	ID            int64           `json:"id,omitempty"`
	UserID        int64           `json:"user_id"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	Frequency     Cadence         `json:"frequency"`
	Status        string          `json:"status"`
	Source        string          `json:"source"` // "detected" or "manual"
	Confidence    int             `json:"confidence"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

// Active reports whether the record is currently in force.
func (r RecurringIncomeRecord) Active(now time.Time) bool {
	return r.EffectiveTo == nil || r.EffectiveTo.After(now)
}
