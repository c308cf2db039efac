package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/logger"
	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/processors"
)

// DefaultSyncEpsilon is the rounding tolerance below which an account-derived
// amount change is not worth a write.
var DefaultSyncEpsilon = decimal.NewFromFloat(0.01)

// GoalService tracks goal progress against live account balances and decides
// which notifications are due. All computation is delegated to the pure
// processors; this layer owns fetching, ownership checks, and persistence.
type GoalService struct {
	store            GoalStore
	onTrackTolerance float64
	syncEpsilon      decimal.Decimal
}

func NewGoalService(store GoalStore, onTrackTolerance float64, syncEpsilon decimal.Decimal) *GoalService {
	if onTrackTolerance <= 0 {
		onTrackTolerance = processors.DefaultOnTrackTolerance
	}
	if !syncEpsilon.IsPositive() {
		syncEpsilon = DefaultSyncEpsilon
	}
	return &GoalService{store: store, onTrackTolerance: onTrackTolerance, syncEpsilon: syncEpsilon}
}

// CreateGoal validates and persists a new goal for the user.
func (s *GoalService) CreateGoal(userID int64, goal *models.Goal) error {
	if goal.Name == "" {
		return fmt.Errorf("%w: goal name is required", models.ErrInvalidInput)
	}
	if !goal.TargetAmount.IsPositive() {
		return fmt.Errorf("%w: target amount must be positive", models.ErrInvalidInput)
	}
	goal.UserID = userID
	goal.IsActive = true
	now := time.Now()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	return s.store.CreateGoal(goal)
}

// UpdateGoal persists changes to a goal the user owns.
func (s *GoalService) UpdateGoal(userID int64, goal *models.Goal) error {
	existing, err := s.ownedGoal(userID, goal.ID)
	if err != nil {
		return err
	}
	goal.UserID = existing.UserID
	goal.CreatedAt = existing.CreatedAt
	goal.UpdatedAt = time.Now()
	return s.store.UpdateGoal(goal)
}

// DeactivateGoal soft-deletes a goal the user owns.
func (s *GoalService) DeactivateGoal(userID, goalID int64) error {
	if _, err := s.ownedGoal(userID, goalID); err != nil {
		return err
	}
	return s.store.DeactivateGoal(goalID)
}

// LinkAccount ties a funding account to a goal with an allocation fraction.
func (s *GoalService) LinkAccount(userID int64, link models.GoalAccountLink) error {
	if _, err := s.ownedGoal(userID, link.GoalID); err != nil {
		return err
	}
	if !link.AllocationFraction.IsPositive() || link.AllocationFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: allocation fraction must be in (0, 1]", models.ErrInvalidInput)
	}
	return s.store.LinkGoalAccount(link)
}

// GoalsForUser lists the user's goals.
func (s *GoalService) GoalsForUser(userID int64) ([]models.Goal, error) {
	return s.store.FetchGoalsForUser(userID)
}

// TrackGoalProgress computes progress for a single goal. The ownership check
// is repeated here defensively even though the HTTP boundary scopes queries
// per user.
func (s *GoalService) TrackGoalProgress(userID, goalID int64) (models.GoalProgress, error) {
	goal, err := s.ownedGoal(userID, goalID)
	if err != nil {
		return models.GoalProgress{}, err
	}
	sync, err := s.store.FetchGoalSyncState(goalID)
	if err != nil {
		return models.GoalProgress{}, fmt.Errorf("fetching sync state for goal %d: %w", goalID, err)
	}
	return processors.ComputeGoalProgress(goal, sync.ObservedMonthlyRate, s.onTrackTolerance, time.Now()), nil
}

// TrackAllGoalsProgress computes progress for every active goal of the user,
// ordered as the store returns them, plus the aggregate summary.
func (s *GoalService) TrackAllGoalsProgress(userID int64) ([]models.GoalProgress, models.GoalProgressSummary, error) {
	goals, err := s.store.FetchGoalsForUser(userID)
	if err != nil {
		return nil, models.GoalProgressSummary{}, err
	}
	now := time.Now()
	progresses := make([]models.GoalProgress, 0, len(goals))
	for _, goal := range goals {
		if !goal.IsActive {
			continue
		}
		sync, err := s.store.FetchGoalSyncState(goal.ID)
		if err != nil {
			return nil, models.GoalProgressSummary{}, fmt.Errorf("fetching sync state for goal %d: %w", goal.ID, err)
		}
		progresses = append(progresses, processors.ComputeGoalProgress(goal, sync.ObservedMonthlyRate, s.onTrackTolerance, now))
	}
	return progresses, processors.SummarizeProgress(progresses), nil
}

// UpdateGoalProgressFromAccounts recomputes each linked goal's current amount
// from its funding accounts and persists only changes beyond the epsilon.
// The observed monthly contribution rate is derived here from the balance
// delta over the time since the last sync.
func (s *GoalService) UpdateGoalProgressFromAccounts(userID int64) error {
	goals, err := s.store.FetchGoalsForUser(userID)
	if err != nil {
		return err
	}
	accounts, err := s.store.FetchAccountsForUser(userID)
	if err != nil {
		return err
	}
	balances := make(map[string]decimal.Decimal, len(accounts))
	for _, acct := range accounts {
		balances[acct.ID] = acct.Balance
	}

	now := time.Now()
	for _, goal := range goals {
		if !goal.IsActive {
			continue
		}
		links, err := s.store.FetchGoalAccountLinks(goal.ID)
		if err != nil {
			return fmt.Errorf("fetching account links for goal %d: %w", goal.ID, err)
		}
		if len(links) == 0 {
			continue // manually tracked goal
		}

		newAmount := decimal.Zero
		for _, link := range links {
			balance, ok := balances[link.AccountID]
			if !ok {
				continue
			}
			newAmount = newAmount.Add(balance.Mul(link.AllocationFraction))
		}
		newAmount = newAmount.Round(2)

		if newAmount.Sub(goal.CurrentAmount).Abs().LessThanOrEqual(s.syncEpsilon) {
			continue // avoid needless writes and history churn
		}

		if err := s.store.UpdateGoalCurrentAmount(goal.ID, newAmount); err != nil {
			return fmt.Errorf("updating amount for goal %d: %w", goal.ID, err)
		}

		sync, err := s.store.FetchGoalSyncState(goal.ID)
		if err != nil {
			return fmt.Errorf("fetching sync state for goal %d: %w", goal.ID, err)
		}
		rate := sync.ObservedMonthlyRate
		if !sync.LastSyncedAt.IsZero() {
			months := processors.MonthsBetween(sync.LastSyncedAt, now)
			if months >= 1.0/30.0 {
				rate = newAmount.Sub(goal.CurrentAmount).Div(decimal.NewFromFloat(months)).Round(2)
			}
		}
		if err := s.store.RecordGoalSyncState(models.GoalSyncState{
			GoalID:              goal.ID,
			ObservedMonthlyRate: rate,
			LastSyncedAt:        now,
		}); err != nil {
			return fmt.Errorf("recording sync state for goal %d: %w", goal.ID, err)
		}

		logger.L.Info("Goal amount synced from accounts",
			"goalID", goal.ID, "previous", goal.CurrentAmount.String(), "current", newAmount.String())
	}
	return nil
}

// GenerateProgressNotifications returns every notification due for the user's
// active goals and advances the per-goal watermark, so repeating the call
// with unchanged state returns nothing.
func (s *GoalService) GenerateProgressNotifications(userID int64) ([]models.ProgressNotification, error) {
	goals, err := s.store.FetchGoalsForUser(userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var due []models.ProgressNotification
	for _, goal := range goals {
		if !goal.IsActive {
			continue
		}
		sync, err := s.store.FetchGoalSyncState(goal.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching sync state for goal %d: %w", goal.ID, err)
		}
		progress := processors.ComputeGoalProgress(goal, sync.ObservedMonthlyRate, s.onTrackTolerance, now)

		prev, err := s.store.FetchLastNotifiedState(goal.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching notified state for goal %d: %w", goal.ID, err)
		}
		notifications, next := processors.DecideNotifications(goal, progress, prev, now)
		if next != prev {
			if err := s.store.RecordNotifiedState(next); err != nil {
				return nil, fmt.Errorf("recording notified state for goal %d: %w", goal.ID, err)
			}
		}
		due = append(due, notifications...)
	}
	return due, nil
}

// ownedGoal fetches a goal and rejects cross-user access.
func (s *GoalService) ownedGoal(userID, goalID int64) (models.Goal, error) {
	goal, err := s.store.FetchGoal(goalID)
	if err != nil {
		return models.Goal{}, err
	}
	if goal.UserID != userID {
		return models.Goal{}, fmt.Errorf("%w: goal %d", models.ErrOwnership, goalID)
	}
	return goal, nil
}
