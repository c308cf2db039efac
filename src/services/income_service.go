package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/logger"
	"github.com/username/finsight/backend/src/models"
	"github.com/username/finsight/backend/src/processors"
)

const (
	ckDetectionResult = "income_detection_user_%d"

	// DefaultAutoPersistConfidence is the confidence at or above which a
	// detection is saved without asking the user. Below it, the result is
	// surfaced for manual confirmation.
	DefaultAutoPersistConfidence = 60

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// DetectionOutcome is what the income wrapper hands back to callers: the
// detection result plus how it was resolved against persisted state.
type DetectionOutcome struct {
	Result models.IncomeDetectionResult `json:"result"`
	// Status is the income state machine position after this call:
	// pending_confirmation when the result awaits the user, confirmed when a
	// record was persisted, or "undetected" when nothing was found.
	Status string `json:"status"`
	// Skipped is true when detection was not run because the user already has
	// an active income record.
	Skipped bool `json:"skipped"`
}

// IncomeStatusUndetected is the state before any qualifying series is found.
const IncomeStatusUndetected = "undetected"

// IncomeService wraps the pure detector with the persisted-state rules:
// skip when income is already declared, auto-persist at high confidence,
// surface for confirmation otherwise.
type IncomeService struct {
	store                IncomeStore
	detector             *processors.IncomeDetector
	resultCache          *cache.Cache
	autoPersistThreshold int
}

// NewIncomeService builds the service. A nil cache disables result caching.
func NewIncomeService(store IncomeStore, detector *processors.IncomeDetector, resultCache *cache.Cache, autoPersistThreshold int) *IncomeService {
	if autoPersistThreshold <= 0 {
		autoPersistThreshold = DefaultAutoPersistConfidence
	}
	return &IncomeService{
		store:                store,
		detector:             detector,
		resultCache:          resultCache,
		autoPersistThreshold: autoPersistThreshold,
	}
}

// DetectIncome resolves the user's monthly income. If an active income record
// already exists, detection is skipped and the record is echoed back. A fresh
// detection at or above the auto-persist threshold is saved immediately;
// anything weaker is cached and surfaced as pending confirmation.
func (s *IncomeService) DetectIncome(userID int64) (DetectionOutcome, error) {
	active, err := s.store.FetchActiveIncomeRecords(userID)
	if err != nil {
		return DetectionOutcome{}, fmt.Errorf("fetching active income records: %w", err)
	}
	if len(active) > 0 {
		rec := active[0]
		logger.L.Info("Income already declared, skipping detection", "userID", userID, "source", rec.Source)
		return DetectionOutcome{
			Result: models.IncomeDetectionResult{
				MonthlyIncome: rec.MonthlyAmount,
				Confidence:    rec.Confidence,
				Source:        rec.Source,
			},
			Status:  models.IncomeStatusConfirmed,
			Skipped: true,
		}, nil
	}

	result, err := s.runDetection(userID)
	if err != nil {
		return DetectionOutcome{}, err
	}

	if !result.MonthlyIncome.IsPositive() {
		return DetectionOutcome{Result: result, Status: IncomeStatusUndetected}, nil
	}

	if result.Confidence >= s.autoPersistThreshold {
		if _, err := s.persistDetectedIncome(userID, result); err != nil {
			return DetectionOutcome{}, err
		}
		return DetectionOutcome{Result: result, Status: models.IncomeStatusConfirmed}, nil
	}

	logger.L.Info("Detection below auto-persist threshold, surfacing for confirmation",
		"userID", userID, "confidence", result.Confidence, "threshold", s.autoPersistThreshold)
	return DetectionOutcome{Result: result, Status: models.IncomeStatusPendingConfirmation}, nil
}

// ConfirmDetectedIncome promotes a surfaced detection into a confirmed income
// record. It reuses the cached detection when present, re-running detection
// otherwise.
func (s *IncomeService) ConfirmDetectedIncome(userID int64) (models.RecurringIncomeRecord, error) {
	result, err := s.cachedOrFreshDetection(userID)
	if err != nil {
		return models.RecurringIncomeRecord{}, err
	}
	if !result.MonthlyIncome.IsPositive() {
		return models.RecurringIncomeRecord{}, fmt.Errorf("%w: no detected income to confirm", models.ErrInvalidInput)
	}
	return s.persistDetectedIncome(userID, result)
}

// DeclareManualIncome records income the user typed in themselves.
func (s *IncomeService) DeclareManualIncome(userID int64, monthlyAmount decimal.Decimal, frequency models.Cadence) (models.RecurringIncomeRecord, error) {
	if !monthlyAmount.IsPositive() {
		return models.RecurringIncomeRecord{}, fmt.Errorf("%w: declared income must be positive", models.ErrInvalidInput)
	}
	if frequency == "" {
		frequency = models.CadenceMonthly
	}
	record := models.RecurringIncomeRecord{
		UserID:        userID,
		MonthlyAmount: monthlyAmount.Round(2),
		Frequency:     frequency,
		Status:        models.IncomeStatusConfirmed,
		Source:        models.IncomeSourceManual,
		Confidence:    100,
		EffectiveFrom: time.Now(),
	}
	created, err := s.supersedeWithRetry(userID, record)
	if err != nil {
		return models.RecurringIncomeRecord{}, err
	}
	s.invalidateCache(userID)
	return created, nil
}

// ActiveIncomeRecords returns the user's currently active income records.
func (s *IncomeService) ActiveIncomeRecords(userID int64) ([]models.RecurringIncomeRecord, error) {
	return s.store.FetchActiveIncomeRecords(userID)
}

func (s *IncomeService) runDetection(userID int64) (models.IncomeDetectionResult, error) {
	if cached, ok := s.cachedResult(userID); ok {
		return cached, nil
	}
	txs, err := s.store.FetchTransactions(userID, nil, nil)
	if err != nil {
		return models.IncomeDetectionResult{}, fmt.Errorf("fetching transactions: %w", err)
	}
	result, err := s.detector.DetectMonthlyIncome(txs)
	if err != nil {
		return models.IncomeDetectionResult{}, err
	}
	logger.L.Info("Income detection completed",
		"userID", userID,
		"monthlyIncome", result.MonthlyIncome.String(),
		"confidence", result.Confidence,
		"series", len(result.Details.RecurringDeposits))
	if s.resultCache != nil {
		s.resultCache.Set(fmt.Sprintf(ckDetectionResult, userID), result, cache.DefaultExpiration)
	}
	return result, nil
}

func (s *IncomeService) cachedOrFreshDetection(userID int64) (models.IncomeDetectionResult, error) {
	if cached, ok := s.cachedResult(userID); ok {
		return cached, nil
	}
	return s.runDetection(userID)
}

func (s *IncomeService) cachedResult(userID int64) (models.IncomeDetectionResult, bool) {
	if s.resultCache == nil {
		return models.IncomeDetectionResult{}, false
	}
	if v, found := s.resultCache.Get(fmt.Sprintf(ckDetectionResult, userID)); found {
		if result, ok := v.(models.IncomeDetectionResult); ok {
			return result, true
		}
	}
	return models.IncomeDetectionResult{}, false
}

func (s *IncomeService) invalidateCache(userID int64) {
	if s.resultCache != nil {
		s.resultCache.Delete(fmt.Sprintf(ckDetectionResult, userID))
	}
}

// persistDetectedIncome supersedes any existing active record and creates a
// confirmed one from the detection winner.
func (s *IncomeService) persistDetectedIncome(userID int64, result models.IncomeDetectionResult) (models.RecurringIncomeRecord, error) {
	frequency := models.CadenceMonthly
	if len(result.Details.RecurringDeposits) > 0 {
		frequency = result.Details.RecurringDeposits[0].Cadence
	}
	record := models.RecurringIncomeRecord{
		UserID:        userID,
		MonthlyAmount: result.MonthlyIncome,
		Frequency:     frequency,
		Status:        models.IncomeStatusConfirmed,
		Source:        models.IncomeSourceDetected,
		Confidence:    result.Confidence,
		EffectiveFrom: time.Now(),
	}
	created, err := s.supersedeWithRetry(userID, record)
	if err != nil {
		return models.RecurringIncomeRecord{}, err
	}
	s.invalidateCache(userID)
	return created, nil
}

// supersedeWithRetry performs the atomic supersede-and-create, retrying once
// on a persistence conflict after re-reading current state. A second conflict
// is surfaced to the caller.
func (s *IncomeService) supersedeWithRetry(userID int64, record models.RecurringIncomeRecord) (models.RecurringIncomeRecord, error) {
	created, err := s.store.SupersedeAndCreateIncomeRecord(userID, record)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, models.ErrPersistenceConflict) {
		return models.RecurringIncomeRecord{}, err
	}

	logger.L.Warn("Persistence conflict superseding income record, retrying once", "userID", userID)
	if _, err := s.store.FetchActiveIncomeRecords(userID); err != nil {
		return models.RecurringIncomeRecord{}, fmt.Errorf("re-reading state after conflict: %w", err)
	}
	created, err = s.store.SupersedeAndCreateIncomeRecord(userID, record)
	if err != nil {
		return models.RecurringIncomeRecord{}, fmt.Errorf("superseding income record after retry: %w", err)
	}
	return created, nil
}
