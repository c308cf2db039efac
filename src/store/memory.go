package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/models"
)

// MemoryStore is a mutex-guarded in-memory implementation of the data-access
// interfaces, used by tests and local development. FailNextSupersede lets a
// test inject a single persistence conflict to exercise the retry path.
type MemoryStore struct {
	mu sync.Mutex

	Transactions  map[int64][]models.Transaction
	Accounts      map[int64][]models.Account
	IncomeRecords []models.RecurringIncomeRecord
	Goals         map[int64]*models.Goal
	Links         map[int64][]models.GoalAccountLink
	SyncStates    map[int64]models.GoalSyncState
	Notified      map[int64]models.NotifiedState

	FailNextSupersede bool

	nextGoalID   int64
	nextIncomeID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Transactions: make(map[int64][]models.Transaction),
		Accounts:     make(map[int64][]models.Account),
		Goals:        make(map[int64]*models.Goal),
		Links:        make(map[int64][]models.GoalAccountLink),
		SyncStates:   make(map[int64]models.GoalSyncState),
		Notified:     make(map[int64]models.NotifiedState),
	}
}

func (m *MemoryStore) FetchTransactions(userID int64, from, to *time.Time) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, tx := range m.Transactions[userID] {
		if from != nil && tx.PostedDate.Before(*from) {
			continue
		}
		if to != nil && tx.PostedDate.After(*to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedDate.Before(out[j].PostedDate) })
	return out, nil
}

func (m *MemoryStore) FetchActiveIncomeRecords(userID int64) ([]models.RecurringIncomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []models.RecurringIncomeRecord
	for _, rec := range m.IncomeRecords {
		if rec.UserID == userID && rec.Active(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) SupersedeAndCreateIncomeRecord(userID int64, record models.RecurringIncomeRecord) (models.RecurringIncomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextSupersede {
		m.FailNextSupersede = false
		return models.RecurringIncomeRecord{}, fmt.Errorf("%w: concurrent writer", models.ErrPersistenceConflict)
	}

	now := time.Now()
	for i := range m.IncomeRecords {
		rec := &m.IncomeRecords[i]
		if rec.UserID == userID && rec.EffectiveTo == nil {
			closed := now
			rec.EffectiveTo = &closed
			rec.Status = models.IncomeStatusSuperseded
		}
	}

	m.nextIncomeID++
	record.ID = m.nextIncomeID
	record.UserID = userID
	record.EffectiveTo = nil
	m.IncomeRecords = append(m.IncomeRecords, record)
	return record, nil
}

func (m *MemoryStore) CreateGoal(goal *models.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGoalID++
	goal.ID = m.nextGoalID
	copied := *goal
	m.Goals[goal.ID] = &copied
	return nil
}

func (m *MemoryStore) UpdateGoal(goal *models.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Goals[goal.ID]; !ok {
		return fmt.Errorf("%w: goal %d", models.ErrGoalNotFound, goal.ID)
	}
	copied := *goal
	m.Goals[goal.ID] = &copied
	return nil
}

func (m *MemoryStore) DeactivateGoal(goalID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	goal, ok := m.Goals[goalID]
	if !ok {
		return fmt.Errorf("%w: goal %d", models.ErrGoalNotFound, goalID)
	}
	goal.IsActive = false
	return nil
}

func (m *MemoryStore) FetchGoal(goalID int64) (models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	goal, ok := m.Goals[goalID]
	if !ok {
		return models.Goal{}, fmt.Errorf("%w: goal %d", models.ErrGoalNotFound, goalID)
	}
	return *goal, nil
}

func (m *MemoryStore) FetchGoalsForUser(userID int64) ([]models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Goal
	for _, goal := range m.Goals {
		if goal.UserID == userID {
			out = append(out, *goal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateGoalCurrentAmount(goalID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	goal, ok := m.Goals[goalID]
	if !ok {
		return fmt.Errorf("%w: goal %d", models.ErrGoalNotFound, goalID)
	}
	goal.CurrentAmount = amount
	goal.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) LinkGoalAccount(link models.GoalAccountLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	links := m.Links[link.GoalID]
	for i := range links {
		if links[i].AccountID == link.AccountID {
			links[i] = link
			return nil
		}
	}
	m.Links[link.GoalID] = append(links, link)
	return nil
}

func (m *MemoryStore) FetchGoalAccountLinks(goalID int64) ([]models.GoalAccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GoalAccountLink(nil), m.Links[goalID]...), nil
}

func (m *MemoryStore) FetchAccountsForUser(userID int64) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Account(nil), m.Accounts[userID]...), nil
}

func (m *MemoryStore) FetchGoalSyncState(goalID int64) (models.GoalSyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.SyncStates[goalID]; ok {
		return state, nil
	}
	return models.GoalSyncState{GoalID: goalID, ObservedMonthlyRate: decimal.Zero}, nil
}

func (m *MemoryStore) RecordGoalSyncState(state models.GoalSyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncStates[state.GoalID] = state
	return nil
}

func (m *MemoryStore) FetchLastNotifiedState(goalID int64) (models.NotifiedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.Notified[goalID]; ok {
		return state, nil
	}
	// Fresh goals start on-track; see SQLiteStore.FetchLastNotifiedState.
	return models.NotifiedState{GoalID: goalID, LastOnTrack: true}, nil
}

func (m *MemoryStore) RecordNotifiedState(state models.NotifiedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified[state.GoalID] = state
	return nil
}
