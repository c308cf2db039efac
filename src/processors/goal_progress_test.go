package processors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finsight/backend/src/models"
)

var trackNow = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func testGoal(target, current float64, targetDate *time.Time) models.Goal {
	return models.Goal{
		ID:            1,
		UserID:        1,
		Name:          "Emergency fund",
		TargetAmount:  decimal.NewFromFloat(target),
		CurrentAmount: decimal.NewFromFloat(current),
		TargetDate:    targetDate,
		IsActive:      true,
	}
}

func TestComputeGoalProgress_ZeroTargetAmount(t *testing.T) {
	progress := ComputeGoalProgress(testGoal(0, 500, nil), decimal.NewFromInt(100), DefaultOnTrackTolerance, trackNow)

	assert.Equal(t, 0.0, progress.ProgressPercentage)
	assert.False(t, progress.IsOnTrack)
	assert.Nil(t, progress.ProjectedCompletionDate)
	assert.Nil(t, progress.RequiredMonthlyContribution)
}

func TestComputeGoalProgress_NegativeTargetAmount(t *testing.T) {
	progress := ComputeGoalProgress(testGoal(-100, 500, nil), decimal.Zero, DefaultOnTrackTolerance, trackNow)

	assert.Equal(t, 0.0, progress.ProgressPercentage)
	assert.False(t, progress.IsOnTrack)
}

func TestComputeGoalProgress_NoDeadlineIsOnTrack(t *testing.T) {
	progress := ComputeGoalProgress(testGoal(10000, 100, nil), decimal.Zero, DefaultOnTrackTolerance, trackNow)

	assert.InDelta(t, 1.0, progress.ProgressPercentage, 0.001)
	assert.True(t, progress.IsOnTrack)
	assert.Nil(t, progress.RequiredMonthlyContribution)
}

func TestComputeGoalProgress_OnTrackScenario(t *testing.T) {
	// target 10000, current 2500, due in 6 months, observed 1500/month.
	// Required pace is about 1250/month, so the goal is ahead of schedule and
	// should complete in about 5 months.
	due := trackNow.AddDate(0, 6, 0)
	goal := testGoal(10000, 2500, &due)

	progress := ComputeGoalProgress(goal, decimal.NewFromInt(1500), DefaultOnTrackTolerance, trackNow)

	assert.InDelta(t, 25.0, progress.ProgressPercentage, 0.001)
	assert.True(t, progress.IsOnTrack)

	require.NotNil(t, progress.RequiredMonthlyContribution)
	required, _ := progress.RequiredMonthlyContribution.Float64()
	assert.InDelta(t, 1250.0, required, 30.0)

	require.NotNil(t, progress.ProjectedCompletionDate)
	assert.True(t, progress.ProjectedCompletionDate.After(trackNow))
	assert.True(t, progress.ProjectedCompletionDate.Before(trackNow.AddDate(0, 5, 3)),
		"projected completion %s should be within about 5 months", progress.ProjectedCompletionDate)
}

func TestComputeGoalProgress_OffTrackWhenPaceTooSlow(t *testing.T) {
	due := trackNow.AddDate(0, 6, 0)
	goal := testGoal(10000, 2500, &due)

	progress := ComputeGoalProgress(goal, decimal.NewFromInt(500), DefaultOnTrackTolerance, trackNow)

	assert.False(t, progress.IsOnTrack)
}

func TestComputeGoalProgress_NoProjectionWithoutPositiveRate(t *testing.T) {
	progress := ComputeGoalProgress(testGoal(10000, 2500, nil), decimal.Zero, DefaultOnTrackTolerance, trackNow)
	assert.Nil(t, progress.ProjectedCompletionDate)

	progress = ComputeGoalProgress(testGoal(10000, 2500, nil), decimal.NewFromInt(-200), DefaultOnTrackTolerance, trackNow)
	assert.Nil(t, progress.ProjectedCompletionDate)
}

func TestComputeGoalProgress_CompletedGoalNeedsNoContribution(t *testing.T) {
	due := trackNow.AddDate(0, 2, 0)
	goal := testGoal(5000, 6000, &due)

	progress := ComputeGoalProgress(goal, decimal.Zero, DefaultOnTrackTolerance, trackNow)

	assert.InDelta(t, 120.0, progress.ProgressPercentage, 0.001)
	assert.True(t, progress.IsOnTrack)
	require.NotNil(t, progress.RequiredMonthlyContribution)
	assert.True(t, progress.RequiredMonthlyContribution.IsZero())
	assert.Nil(t, progress.ProjectedCompletionDate)
}

func TestComputeGoalProgress_DueTodayUsesFloor(t *testing.T) {
	due := trackNow.Add(time.Hour)
	goal := testGoal(10000, 2500, &due)

	// Must not divide by zero; the one-day floor produces a very large
	// required contribution instead.
	progress := ComputeGoalProgress(goal, decimal.NewFromInt(1500), DefaultOnTrackTolerance, trackNow)
	require.NotNil(t, progress.RequiredMonthlyContribution)
	assert.True(t, progress.RequiredMonthlyContribution.GreaterThan(decimal.NewFromInt(10000)))
	assert.False(t, progress.IsOnTrack)
}

func TestDecideNotifications_MilestoneCrossing(t *testing.T) {
	goal := testGoal(10000, 7600, nil)
	progress := models.GoalProgress{GoalID: goal.ID, ProgressPercentage: 76, IsOnTrack: true}
	prev := models.NotifiedState{GoalID: goal.ID, LastPercentage: 74, LastOnTrack: true}

	due, next := DecideNotifications(goal, progress, prev, trackNow)

	require.Len(t, due, 1)
	assert.Equal(t, models.NotificationMilestone, due[0].Kind)
	assert.Equal(t, 75, due[0].Milestone)
	assert.Equal(t, 76.0, next.LastPercentage)

	// Re-running with unchanged state must not re-emit the crossing.
	again, _ := DecideNotifications(goal, progress, next, trackNow)
	assert.Empty(t, again)
}

func TestDecideNotifications_MultipleThresholdsInOneJump(t *testing.T) {
	goal := testGoal(10000, 8000, nil)
	progress := models.GoalProgress{GoalID: goal.ID, ProgressPercentage: 80, IsOnTrack: true}
	prev := models.NotifiedState{GoalID: goal.ID, LastPercentage: 10, LastOnTrack: true}

	due, _ := DecideNotifications(goal, progress, prev, trackNow)

	require.Len(t, due, 3)
	milestones := []int{due[0].Milestone, due[1].Milestone, due[2].Milestone}
	assert.Equal(t, []int{25, 50, 75}, milestones)
}

func TestDecideNotifications_CompletedEmittedOnce(t *testing.T) {
	goal := testGoal(10000, 10500, nil)
	progress := models.GoalProgress{GoalID: goal.ID, ProgressPercentage: 105, IsOnTrack: true}
	prev := models.NotifiedState{GoalID: goal.ID, LastPercentage: 90, LastOnTrack: true}

	due, next := DecideNotifications(goal, progress, prev, trackNow)

	require.Len(t, due, 1)
	assert.Equal(t, models.NotificationCompleted, due[0].Kind)
	assert.True(t, next.CompletedSent)

	// Even if the percentage dips and recovers, completed stays one-shot.
	dip := models.NotifiedState{GoalID: goal.ID, LastPercentage: 95, LastOnTrack: true, CompletedSent: true}
	again, _ := DecideNotifications(goal, progress, dip, trackNow)
	assert.Empty(t, again)
}

func TestDecideNotifications_OffTrackTransition(t *testing.T) {
	goal := testGoal(10000, 3000, nil)
	progress := models.GoalProgress{GoalID: goal.ID, ProgressPercentage: 30, IsOnTrack: false}
	prev := models.NotifiedState{GoalID: goal.ID, LastPercentage: 30, LastOnTrack: true}

	due, next := DecideNotifications(goal, progress, prev, trackNow)

	require.Len(t, due, 1)
	assert.Equal(t, models.NotificationOffTrack, due[0].Kind)
	assert.False(t, next.LastOnTrack)

	// Staying off-track is not a new transition.
	again, _ := DecideNotifications(goal, progress, next, trackNow)
	assert.Empty(t, again)
}

func TestSummarizeProgress(t *testing.T) {
	progresses := []models.GoalProgress{
		{ProgressPercentage: 100, IsOnTrack: true},
		{ProgressPercentage: 50, IsOnTrack: true},
		{ProgressPercentage: 10, IsOnTrack: false},
	}

	summary := SummarizeProgress(progresses)

	assert.Equal(t, 3, summary.TotalGoals)
	assert.Equal(t, 2, summary.OnTrack)
	assert.Equal(t, 1, summary.Completed)
	assert.InDelta(t, 53.33, summary.AverageProgress, 0.01)

	empty := SummarizeProgress(nil)
	assert.Equal(t, 0, empty.TotalGoals)
	assert.Equal(t, 0.0, empty.AverageProgress)
}
