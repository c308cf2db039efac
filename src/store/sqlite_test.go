package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/services"
)

// Both implementations must satisfy the data-access interfaces.
var (
	_ services.IncomeStore = (*SQLiteStore)(nil)
	_ services.GoalStore   = (*SQLiteStore)(nil)
	_ services.IncomeStore = (*MemoryStore)(nil)
	_ services.GoalStore   = (*MemoryStore)(nil)
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, "schema statement failed: %s", stmt)
	}
	return NewSQLiteStore(db)
}

func seedAccount(t *testing.T, s *SQLiteStore, userID int64, accountID string) {
	t.Helper()
	_, err := s.db.Exec(`
	INSERT INTO accounts (id, user_id, name, type, balance, currency, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		accountID, userID, "Checking", "checking", "1000", "USD", time.Now())
	require.NoError(t, err)
}

func TestSQLiteStore_FetchTransactions(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, 1, "acct-1")
	seedAccount(t, s, 2, "acct-other")

	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	insert := func(id, accountID string, amount string, posted time.Time) {
		_, err := s.db.Exec(`
		INSERT INTO transactions (id, account_id, amount, currency, posted_date, merchant_name, raw_description, category, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, accountID, amount, "USD", posted, "ACME", "ACME PAYROLL", "Income", false)
		require.NoError(t, err)
	}
	insert("t1", "acct-1", "3000", base)
	insert("t2", "acct-1", "3000", base.AddDate(0, 0, 30))
	insert("t3", "acct-other", "99", base)

	txs, err := s.FetchTransactions(1, nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2, "only the user's own transactions")
	assert.Equal(t, "t1", txs[0].ID)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, "ACME", txs[0].MerchantName)

	from := base.AddDate(0, 0, 1)
	txs, err = s.FetchTransactions(1, &from, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ID)
}

func TestSQLiteStore_SupersedeAndCreateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	first, err := s.SupersedeAndCreateIncomeRecord(1, models.RecurringIncomeRecord{
		MonthlyAmount: decimal.NewFromInt(4000),
		Frequency:     models.CadenceMonthly,
		Status:        models.IncomeStatusConfirmed,
		Source:        models.IncomeSourceManual,
		Confidence:    100,
		EffectiveFrom: time.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := s.SupersedeAndCreateIncomeRecord(1, models.RecurringIncomeRecord{
		MonthlyAmount: decimal.NewFromInt(4500),
		Frequency:     models.CadenceMonthly,
		Status:        models.IncomeStatusConfirmed,
		Source:        models.IncomeSourceDetected,
		Confidence:    85,
		EffectiveFrom: time.Now(),
	})
	require.NoError(t, err)

	active, err := s.FetchActiveIncomeRecords(1)
	require.NoError(t, err)
	require.Len(t, active, 1, "exactly one active record after supersede")
	assert.Equal(t, second.ID, active[0].ID)
	assert.True(t, active[0].MonthlyAmount.Equal(decimal.NewFromInt(4500)))

	var status string
	var effectiveTo sql.NullTime
	require.NoError(t, s.db.QueryRow(
		`SELECT status, effective_to FROM recurring_income WHERE id = ?`, first.ID).
		Scan(&status, &effectiveTo))
	assert.Equal(t, models.IncomeStatusSuperseded, status)
	require.True(t, effectiveTo.Valid)
	assert.False(t, effectiveTo.Time.After(time.Now()))
}

func TestSQLiteStore_GoalLifecycle(t *testing.T) {
	s := newTestStore(t)

	due := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	goal := models.Goal{
		UserID:        1,
		Name:          "Emergency fund",
		TargetAmount:  decimal.NewFromInt(10000),
		CurrentAmount: decimal.NewFromInt(2500),
		TargetDate:    &due,
		Priority:      1,
		IsActive:      true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, s.CreateGoal(&goal))
	require.NotZero(t, goal.ID)

	fetched, err := s.FetchGoal(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Emergency fund", fetched.Name)
	assert.True(t, fetched.TargetAmount.Equal(decimal.NewFromInt(10000)))
	require.NotNil(t, fetched.TargetDate)
	assert.Equal(t, due.Year(), fetched.TargetDate.Year())

	require.NoError(t, s.UpdateGoalCurrentAmount(goal.ID, decimal.NewFromInt(5000)))
	fetched, err = s.FetchGoal(goal.ID)
	require.NoError(t, err)
	assert.True(t, fetched.CurrentAmount.Equal(decimal.NewFromInt(5000)))

	require.NoError(t, s.DeactivateGoal(goal.ID))
	fetched, err = s.FetchGoal(goal.ID)
	require.NoError(t, err)
	assert.False(t, fetched.IsActive)

	_, err = s.FetchGoal(goal.ID + 99)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)
}

func TestSQLiteStore_NotifiedStateDefaultsOnTrack(t *testing.T) {
	s := newTestStore(t)

	state, err := s.FetchLastNotifiedState(42)
	require.NoError(t, err)
	assert.True(t, state.LastOnTrack)
	assert.Equal(t, 0.0, state.LastPercentage)

	state.LastPercentage = 76
	state.LastOnTrack = false
	require.NoError(t, s.RecordNotifiedState(state))

	reread, err := s.FetchLastNotifiedState(42)
	require.NoError(t, err)
	assert.Equal(t, 76.0, reread.LastPercentage)
	assert.False(t, reread.LastOnTrack)
}

func TestSQLiteStore_GoalSyncStateUpsert(t *testing.T) {
	s := newTestStore(t)

	state, err := s.FetchGoalSyncState(7)
	require.NoError(t, err)
	assert.True(t, state.ObservedMonthlyRate.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordGoalSyncState(models.GoalSyncState{
		GoalID:              7,
		ObservedMonthlyRate: decimal.NewFromInt(1500),
		LastSyncedAt:        now,
	}))
	require.NoError(t, s.RecordGoalSyncState(models.GoalSyncState{
		GoalID:              7,
		ObservedMonthlyRate: decimal.NewFromInt(1750),
		LastSyncedAt:        now.Add(time.Hour),
	}))

	reread, err := s.FetchGoalSyncState(7)
	require.NoError(t, err)
	assert.True(t, reread.ObservedMonthlyRate.Equal(decimal.NewFromInt(1750)))
}
