package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a savings or debt-payoff target. CurrentAmount only advances through
// explicit sync or manual updates, never silently.
type Goal struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetDate    *time.Time      `json:"target_date,omitempty"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// GoalProgress is the derived progress state for a single goal.
// ProgressPercentage is not capped at 100 here; display layers may clamp.
type GoalProgress struct {
	GoalID                      int64            `json:"goal_id"`
	ProgressPercentage          float64          `json:"progress_percentage"`
	IsOnTrack                   bool             `json:"is_on_track"`
	ProjectedCompletionDate     *time.Time       `json:"projected_completion_date,omitempty"`
	RequiredMonthlyContribution *decimal.Decimal `json:"required_monthly_contribution,omitempty"`
}

// GoalProgressSummary aggregates progress across a user's active goals.
type GoalProgressSummary struct {
	TotalGoals      int     `json:"total_goals"`
	OnTrack         int     `json:"on_track"`
	Completed       int     `json:"completed"`
	AverageProgress float64 `json:"average_progress"`
}

// Progress notification kinds.
const (
	NotificationMilestone = "milestone"
	NotificationOffTrack  = "off_track"
	NotificationCompleted = "completed"
)

// ProgressNotification is handed to the notification sink; the core never
// persists it.
type ProgressNotification struct {
	ID        string    `json:"id"`
	GoalID    int64     `json:"goal_id"`
	Kind      string    `json:"kind"`
	Milestone int       `json:"milestone,omitempty"` // crossed threshold, for milestone kind
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// GoalSyncState is the persisted observation state from the last account
// sync: the contribution rate derived from balance deltas and when it was
// measured. The rate is supplied to progress computation, never recomputed
// inside it.
type GoalSyncState struct {
	GoalID              int64           `json:"goal_id"`
	ObservedMonthlyRate decimal.Decimal `json:"observed_monthly_rate"`
	LastSyncedAt        time.Time       `json:"last_synced_at"`
}

// NotifiedState is the last notification watermark persisted per goal. It is
// what makes repeated tracking passes idempotent: a crossing already recorded
// here is not re-emitted.
type NotifiedState struct {
	GoalID          int64   `json:"goal_id"`
	LastPercentage  float64 `json:"last_percentage"`
	LastOnTrack     bool    `json:"last_on_track"`
	CompletedSent   bool    `json:"completed_sent"`
}
