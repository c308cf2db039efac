// Package store implements the data-access interfaces consumed by the
// services layer. The SQLite implementation is the production path; the
// in-memory implementation backs tests and local development.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/models"
)

// SQLiteStore persists all core entities in a single SQLite database. The
// handle is passed in explicitly so callers control connection scope and
// transactional isolation; the store holds no global state.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// --- IncomeStore ---

func (s *SQLiteStore) FetchTransactions(userID int64, from, to *time.Time) ([]models.Transaction, error) {
	query := `
	SELECT t.id, t.account_id, t.amount, t.currency, t.posted_date,
	       t.merchant_name, t.raw_description, t.category, t.pending
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	WHERE a.user_id = ?`
	args := []any{userID}
	if from != nil {
		query += " AND t.posted_date >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND t.posted_date <= ?"
		args = append(args, *to)
	}
	query += " ORDER BY t.posted_date"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var amount string
		var merchant, category sql.NullString
		if err := rows.Scan(&tx.ID, &tx.AccountID, &amount, &tx.Currency, &tx.PostedDate,
			&merchant, &tx.RawDescription, &category, &tx.Pending); err != nil {
			return nil, err
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount for transaction %s: %w", tx.ID, err)
		}
		tx.MerchantName = merchant.String
		tx.Category = category.String
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *SQLiteStore) FetchActiveIncomeRecords(userID int64) ([]models.RecurringIncomeRecord, error) {
	rows, err := s.db.Query(`
	SELECT id, user_id, monthly_amount, frequency, status, source, confidence, effective_from, effective_to
	FROM recurring_income
	WHERE user_id = ? AND (effective_to IS NULL OR effective_to > ?)
	ORDER BY effective_from DESC`, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("querying income records: %w", err)
	}
	defer rows.Close()

	var records []models.RecurringIncomeRecord
	for rows.Next() {
		rec, err := scanIncomeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SupersedeAndCreateIncomeRecord(userID int64, record models.RecurringIncomeRecord) (models.RecurringIncomeRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return models.RecurringIncomeRecord{}, mapConflict(err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.Exec(`
	UPDATE recurring_income SET effective_to = ?, status = ?
	WHERE user_id = ? AND effective_to IS NULL`,
		now, models.IncomeStatusSuperseded, userID); err != nil {
		return models.RecurringIncomeRecord{}, mapConflict(err)
	}

	res, err := tx.Exec(`
	INSERT INTO recurring_income (user_id, monthly_amount, frequency, status, source, confidence, effective_from, effective_to)
	VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		userID, record.MonthlyAmount.String(), string(record.Frequency), record.Status,
		record.Source, record.Confidence, record.EffectiveFrom)
	if err != nil {
		return models.RecurringIncomeRecord{}, mapConflict(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.RecurringIncomeRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RecurringIncomeRecord{}, mapConflict(err)
	}

	record.ID = id
	record.UserID = userID
	return record, nil
}

// mapConflict translates SQLite lock contention into the core's conflict
// error so the service layer can retry.
func mapConflict(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %v", models.ErrPersistenceConflict, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncomeRecord(row rowScanner) (models.RecurringIncomeRecord, error) {
	var rec models.RecurringIncomeRecord
	var amount, frequency string
	var effectiveTo sql.NullTime
	if err := row.Scan(&rec.ID, &rec.UserID, &amount, &frequency, &rec.Status,
		&rec.Source, &rec.Confidence, &rec.EffectiveFrom, &effectiveTo); err != nil {
		return rec, err
	}
	var err error
	rec.MonthlyAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return rec, fmt.Errorf("parsing income amount: %w", err)
	}
	rec.Frequency = models.Cadence(frequency)
	if effectiveTo.Valid {
		rec.EffectiveTo = &effectiveTo.Time
	}
	return rec, nil
}

// --- GoalStore ---

func (s *SQLiteStore) CreateGoal(goal *models.Goal) error {
	res, err := s.db.Exec(`
	INSERT INTO goals (user_id, name, target_amount, current_amount, target_date, priority, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.UserID, goal.Name, goal.TargetAmount.String(), goal.CurrentAmount.String(),
		nullableTime(goal.TargetDate), goal.Priority, goal.IsActive, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return err
	}
	goal.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) UpdateGoal(goal *models.Goal) error {
	_, err := s.db.Exec(`
	UPDATE goals SET name = ?, target_amount = ?, current_amount = ?, target_date = ?, priority = ?, is_active = ?, updated_at = ?
	WHERE id = ?`,
		goal.Name, goal.TargetAmount.String(), goal.CurrentAmount.String(),
		nullableTime(goal.TargetDate), goal.Priority, goal.IsActive, goal.UpdatedAt, goal.ID)
	return err
}

func (s *SQLiteStore) DeactivateGoal(goalID int64) error {
	_, err := s.db.Exec(`UPDATE goals SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), goalID)
	return err
}

func (s *SQLiteStore) FetchGoal(goalID int64) (models.Goal, error) {
	row := s.db.QueryRow(`
	SELECT id, user_id, name, target_amount, current_amount, target_date, priority, is_active, created_at, updated_at
	FROM goals WHERE id = ?`, goalID)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Goal{}, fmt.Errorf("%w: goal %d", models.ErrGoalNotFound, goalID)
	}
	return goal, err
}

func (s *SQLiteStore) FetchGoalsForUser(userID int64) ([]models.Goal, error) {
	rows, err := s.db.Query(`
	SELECT id, user_id, name, target_amount, current_amount, target_date, priority, is_active, created_at, updated_at
	FROM goals WHERE user_id = ? ORDER BY priority, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

func (s *SQLiteStore) UpdateGoalCurrentAmount(goalID int64, amount decimal.Decimal) error {
	_, err := s.db.Exec(`UPDATE goals SET current_amount = ?, updated_at = ? WHERE id = ?`,
		amount.String(), time.Now(), goalID)
	return err
}

func (s *SQLiteStore) LinkGoalAccount(link models.GoalAccountLink) error {
	_, err := s.db.Exec(`
	INSERT INTO goal_account_links (goal_id, account_id, allocation_fraction)
	VALUES (?, ?, ?)
	ON CONFLICT(goal_id, account_id) DO UPDATE SET allocation_fraction = excluded.allocation_fraction`,
		link.GoalID, link.AccountID, link.AllocationFraction.String())
	return err
}

func (s *SQLiteStore) FetchGoalAccountLinks(goalID int64) ([]models.GoalAccountLink, error) {
	rows, err := s.db.Query(`
	SELECT goal_id, account_id, allocation_fraction FROM goal_account_links WHERE goal_id = ?`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.GoalAccountLink
	for rows.Next() {
		var link models.GoalAccountLink
		var fraction string
		if err := rows.Scan(&link.GoalID, &link.AccountID, &fraction); err != nil {
			return nil, err
		}
		link.AllocationFraction, err = decimal.NewFromString(fraction)
		if err != nil {
			return nil, fmt.Errorf("parsing allocation fraction: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *SQLiteStore) FetchAccountsForUser(userID int64) ([]models.Account, error) {
	rows, err := s.db.Query(`
	SELECT id, user_id, name, type, balance, currency, synced_at FROM accounts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acct models.Account
		var balance string
		if err := rows.Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.Type, &balance, &acct.Currency, &acct.SyncedAt); err != nil {
			return nil, err
		}
		acct.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("parsing balance for account %s: %w", acct.ID, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) FetchGoalSyncState(goalID int64) (models.GoalSyncState, error) {
	row := s.db.QueryRow(`
	SELECT goal_id, observed_monthly_rate, last_synced_at FROM goal_sync_state WHERE goal_id = ?`, goalID)
	var state models.GoalSyncState
	var rate string
	err := row.Scan(&state.GoalID, &rate, &state.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GoalSyncState{GoalID: goalID, ObservedMonthlyRate: decimal.Zero}, nil
	}
	if err != nil {
		return state, err
	}
	state.ObservedMonthlyRate, err = decimal.NewFromString(rate)
	if err != nil {
		return state, fmt.Errorf("parsing observed rate: %w", err)
	}
	return state, nil
}

func (s *SQLiteStore) RecordGoalSyncState(state models.GoalSyncState) error {
	_, err := s.db.Exec(`
	INSERT INTO goal_sync_state (goal_id, observed_monthly_rate, last_synced_at)
	VALUES (?, ?, ?)
	ON CONFLICT(goal_id) DO UPDATE SET observed_monthly_rate = excluded.observed_monthly_rate, last_synced_at = excluded.last_synced_at`,
		state.GoalID, state.ObservedMonthlyRate.String(), state.LastSyncedAt)
	return err
}

func (s *SQLiteStore) FetchLastNotifiedState(goalID int64) (models.NotifiedState, error) {
	row := s.db.QueryRow(`
	SELECT goal_id, last_percentage, last_on_track, completed_sent FROM goal_notified_state WHERE goal_id = ?`, goalID)
	var state models.NotifiedState
	err := row.Scan(&state.GoalID, &state.LastPercentage, &state.LastOnTrack, &state.CompletedSent)
	if errors.Is(err, sql.ErrNoRows) {
		// Fresh goals start on-track so the first pass cannot emit a spurious
		// off_track transition.
		return models.NotifiedState{GoalID: goalID, LastOnTrack: true}, nil
	}
	return state, err
}

func (s *SQLiteStore) RecordNotifiedState(state models.NotifiedState) error {
	_, err := s.db.Exec(`
	INSERT INTO goal_notified_state (goal_id, last_percentage, last_on_track, completed_sent)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(goal_id) DO UPDATE SET last_percentage = excluded.last_percentage, last_on_track = excluded.last_on_track, completed_sent = excluded.completed_sent`,
		state.GoalID, state.LastPercentage, state.LastOnTrack, state.CompletedSent)
	return err
}

func scanGoal(row rowScanner) (models.Goal, error) {
	var goal models.Goal
	var target, current string
	var targetDate sql.NullTime
	if err := row.Scan(&goal.ID, &goal.UserID, &goal.Name, &target, &current,
		&targetDate, &goal.Priority, &goal.IsActive, &goal.CreatedAt, &goal.UpdatedAt); err != nil {
		return goal, err
	}
	var err error
	if goal.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return goal, fmt.Errorf("parsing target amount: %w", err)
	}
	if goal.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return goal, fmt.Errorf("parsing current amount: %w", err)
	}
	if targetDate.Valid {
		goal.TargetDate = &targetDate.Time
	}
	return goal, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
