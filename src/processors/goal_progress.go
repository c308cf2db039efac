package processors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/models"
)

const (
	// DefaultOnTrackTolerance is the fraction of the required linear pace the
	// observed contribution rate must reach to count as on-track.
	DefaultOnTrackTolerance = 0.90

	// minMonthsRemaining floors the pace denominator at one day so goals due
	// today do not divide by zero.
	minMonthsRemaining = 1.0 / 30.0
)

// MilestoneThresholds are the fixed progress percentages that trigger a
// one-time notification when crossed. Reaching 100 emits a completed
// notification instead of a plain milestone.
var MilestoneThresholds = []int{25, 50, 75, 100}

// ComputeGoalProgress derives the progress state for a single goal.
// observedMonthlyRate is the goal's recent contribution pace, derived
// externally from account-balance deltas and supplied as input. The call is
// pure: identical inputs always yield identical output.
func ComputeGoalProgress(goal models.Goal, observedMonthlyRate decimal.Decimal, onTrackTolerance float64, now time.Time) models.GoalProgress {
	progress := models.GoalProgress{GoalID: goal.ID}

	// Invalid targets are reported as degenerate progress, never divided by.
	if !goal.TargetAmount.IsPositive() {
		return progress
	}

	pct, _ := goal.CurrentAmount.Div(goal.TargetAmount).Mul(decimal.NewFromInt(100)).Float64()
	if pct < 0 {
		pct = 0
	}
	progress.ProgressPercentage = pct

	remaining := goal.TargetAmount.Sub(goal.CurrentAmount)

	if goal.TargetDate == nil {
		// No deadline to miss.
		progress.IsOnTrack = true
	} else {
		monthsRemaining := MonthsBetween(now, *goal.TargetDate)
		if monthsRemaining < minMonthsRemaining {
			monthsRemaining = minMonthsRemaining
		}
		required := decimal.Zero
		if remaining.IsPositive() {
			required = remaining.Div(decimal.NewFromFloat(monthsRemaining)).Round(2)
		}
		progress.RequiredMonthlyContribution = &required

		if required.IsZero() {
			progress.IsOnTrack = true
		} else {
			threshold := required.Mul(decimal.NewFromFloat(onTrackTolerance))
			progress.IsOnTrack = observedMonthlyRate.GreaterThanOrEqual(threshold)
		}
	}

	if remaining.IsPositive() && observedMonthlyRate.IsPositive() {
		monthsToGo, _ := remaining.Div(observedMonthlyRate).Float64()
		projected := AddMonths(now, monthsToGo)
		progress.ProjectedCompletionDate = &projected
	}

	return progress
}

// SummarizeProgress aggregates per-goal progress into the caller-facing
// summary shape.
func SummarizeProgress(progresses []models.GoalProgress) models.GoalProgressSummary {
	summary := models.GoalProgressSummary{TotalGoals: len(progresses)}
	if len(progresses) == 0 {
		return summary
	}
	total := 0.0
	for _, p := range progresses {
		if p.IsOnTrack {
			summary.OnTrack++
		}
		if p.ProgressPercentage >= 100 {
			summary.Completed++
		}
		total += p.ProgressPercentage
	}
	summary.AverageProgress = total / float64(len(progresses))
	return summary
}

// DecideNotifications compares the new progress against the last notified
// state and returns the notifications now due plus the state to persist.
// Re-running with unchanged state returns nothing: the watermark makes
// crossings one-shot.
func DecideNotifications(goal models.Goal, progress models.GoalProgress, prev models.NotifiedState, now time.Time) ([]models.ProgressNotification, models.NotifiedState) {
	var due []models.ProgressNotification

	next := models.NotifiedState{
		GoalID:         goal.ID,
		LastPercentage: progress.ProgressPercentage,
		LastOnTrack:    progress.IsOnTrack,
		CompletedSent:  prev.CompletedSent,
	}

	for _, threshold := range MilestoneThresholds {
		if prev.LastPercentage >= float64(threshold) || progress.ProgressPercentage < float64(threshold) {
			continue
		}
		if threshold == 100 {
			// The 100% crossing is the completed notification, emitted once.
			if !prev.CompletedSent {
				due = append(due, newNotification(goal, models.NotificationCompleted, 100,
					fmt.Sprintf("Goal %q is complete. Congratulations!", goal.Name), now))
				next.CompletedSent = true
			}
			continue
		}
		due = append(due, newNotification(goal, models.NotificationMilestone, threshold,
			fmt.Sprintf("Goal %q crossed %d%% progress.", goal.Name, threshold), now))
	}

	if prev.LastOnTrack && !progress.IsOnTrack {
		due = append(due, newNotification(goal, models.NotificationOffTrack, 0,
			fmt.Sprintf("Goal %q has fallen behind its target pace.", goal.Name), now))
	}

	return due, next
}

func newNotification(goal models.Goal, kind string, milestone int, message string, now time.Time) models.ProgressNotification {
	return models.ProgressNotification{
		ID:        uuid.New().String(),
		GoalID:    goal.ID,
		Kind:      kind,
		Milestone: milestone,
		Message:   message,
		CreatedAt: now,
	}
}
