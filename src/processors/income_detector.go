package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/finsight/backend/src/models"
)

// Detector tuning defaults. Overridable through IncomeDetectorConfig, wired
// from application config.
const (
	DefaultAmountToleranceRatio = 0.10
	DefaultSimilarityThreshold  = 0.60
	DefaultMinConfidenceFloor   = 40

	maxOccurrenceScore  = 85
	baseOccurrenceScore = 40
	perOccurrenceBonus  = 15
	maxGapPenalty       = 25
	maxAmountPenalty    = 25
)

// IncomeDetectorConfig carries the tunable thresholds of the detector.
type IncomeDetectorConfig struct {
	AmountToleranceRatio float64
	SimilarityThreshold  float64
	MinConfidenceFloor   int
}

func (c IncomeDetectorConfig) withDefaults() IncomeDetectorConfig {
	if c.AmountToleranceRatio <= 0 {
		c.AmountToleranceRatio = DefaultAmountToleranceRatio
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.MinConfidenceFloor <= 0 {
		c.MinConfidenceFloor = DefaultMinConfidenceFloor
	}
	return c
}

// IncomeDetector clusters deposit-like transactions into recurring series and
// selects the best candidate as the user's monthly income. It is a pure
// computation over its input and touches no storage.
type IncomeDetector struct {
	cfg       IncomeDetectorConfig
	scorer    SimilarityScorer
	candidate CandidatePredicate
}

// NewIncomeDetector builds a detector with the default containment scorer and
// keyword candidate predicate.
func NewIncomeDetector(cfg IncomeDetectorConfig) *IncomeDetector {
	return &IncomeDetector{
		cfg:       cfg.withDefaults(),
		scorer:    ContainmentScorer{},
		candidate: DefaultCandidatePredicate,
	}
}

// NewIncomeDetectorWith builds a detector with a custom similarity scorer and
// candidate predicate.
func NewIncomeDetectorWith(cfg IncomeDetectorConfig, scorer SimilarityScorer, candidate CandidatePredicate) *IncomeDetector {
	return &IncomeDetector{cfg: cfg.withDefaults(), scorer: scorer, candidate: candidate}
}

// openSeries is a cluster under construction.
type openSeries struct {
	descriptionKey string
	members        []models.Transaction
}

func (s *openSeries) amounts() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.members))
	for i, m := range s.members {
		out[i] = m.Amount
	}
	return out
}

func (s *openSeries) representative() decimal.Decimal {
	return medianDecimal(s.amounts())
}

// DetectMonthlyIncome scans the transaction history and returns the best
// recurring-income estimate. A zero MonthlyIncome with zero Confidence means
// no qualifying series was found; that is a legitimate result, not an error.
func (d *IncomeDetector) DetectMonthlyIncome(txs []models.Transaction) (models.IncomeDetectionResult, error) {
	candidates := d.filterCandidates(txs)

	if err := checkSingleCurrency(candidates); err != nil {
		return models.IncomeDetectionResult{}, err
	}

	series := d.clusterSeries(candidates)

	var qualifying []scoredSeries
	for _, s := range series {
		if len(s.members) < 2 {
			continue
		}
		scored := d.scoreSeries(s)
		if scored.Series.Cadence == models.CadenceIrregular {
			continue
		}
		if scored.Confidence < d.cfg.MinConfidenceFloor {
			continue
		}
		qualifying = append(qualifying, scored)
	}

	if len(qualifying) == 0 {
		return models.IncomeDetectionResult{MonthlyIncome: decimal.Zero, Confidence: 0, Source: models.IncomeSourceDetected}, nil
	}

	sort.Slice(qualifying, func(i, j int) bool {
		if !qualifying[i].MonthlyAmount.Equal(qualifying[j].MonthlyAmount) {
			return qualifying[i].MonthlyAmount.GreaterThan(qualifying[j].MonthlyAmount)
		}
		return qualifying[i].Confidence > qualifying[j].Confidence
	})

	summaries := make([]models.RecurringSeriesSummary, 0, len(qualifying))
	for _, q := range qualifying {
		summaries = append(summaries, q.summary())
	}

	// Only the top series is reported as monthly income. Listing every
	// qualifying series lets a caller sum multiple incomes explicitly; summing
	// here would double-count transfers misclassified as income.
	winner := qualifying[0]
	return models.IncomeDetectionResult{
		MonthlyIncome: winner.MonthlyAmount,
		Confidence:    winner.Confidence,
		Source:        models.IncomeSourceDetected,
		Details:       models.IncomeDetectionDetails{RecurringDeposits: summaries},
	}, nil
}

func (d *IncomeDetector) filterCandidates(txs []models.Transaction) []models.Transaction {
	var out []models.Transaction
	for _, tx := range txs {
		if tx.Pending || !tx.Amount.IsPositive() {
			continue
		}
		if !d.candidate(tx.Category, tx.MerchantName, tx.RawDescription) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedDate.Before(out[j].PostedDate) })
	return out
}

// checkSingleCurrency rejects mixed-currency candidate sets. Converting
// between currencies needs a conversion table this component does not own.
func checkSingleCurrency(txs []models.Transaction) error {
	seen := ""
	for _, tx := range txs {
		if tx.Currency == "" {
			continue
		}
		if seen == "" {
			seen = tx.Currency
			continue
		}
		if tx.Currency != seen {
			return fmt.Errorf("%w: transactions mix currencies %s and %s without a conversion table", models.ErrInvalidInput, seen, tx.Currency)
		}
	}
	return nil
}

// clusterSeries groups candidates by pairwise amount and description
// compatibility. Each transaction joins the best-matching open series or
// starts a new one; no global ordering by merchant is required.
func (d *IncomeDetector) clusterSeries(candidates []models.Transaction) []*openSeries {
	var series []*openSeries
	tolerance := decimal.NewFromFloat(d.cfg.AmountToleranceRatio)

	for _, tx := range candidates {
		key := descriptionKey(tx)

		var best *openSeries
		bestScore := 0.0
		for _, s := range series {
			rep := s.representative()
			if rep.IsZero() {
				continue
			}
			delta := tx.Amount.Sub(rep).Abs().Div(rep)
			if delta.GreaterThan(tolerance) {
				continue
			}
			score := d.scorer.Score(key, s.descriptionKey)
			if score < d.cfg.SimilarityThreshold {
				continue
			}
			if score > bestScore {
				best = s
				bestScore = score
			}
		}

		if best != nil {
			best.members = append(best.members, tx)
		} else {
			series = append(series, &openSeries{descriptionKey: key, members: []models.Transaction{tx}})
		}
	}
	return series
}

func descriptionKey(tx models.Transaction) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	return tx.RawDescription
}

type scoredSeries struct {
	Series        models.RecurringSeries
	Confidence    int
	MonthlyAmount decimal.Decimal
	description   string
}

// scoreSeries classifies cadence, scores confidence, and normalizes the
// representative amount to a monthly equivalent.
func (d *IncomeDetector) scoreSeries(s *openSeries) scoredSeries {
	dates := make([]time.Time, len(s.members))
	for i, m := range s.members {
		dates[i] = m.PostedDate
	}
	gaps := dayGaps(dates)
	rep := s.representative()
	cadence := classifyCadence(dates, gaps)

	result := scoredSeries{
		Series: models.RecurringSeries{
			RepresentativeAmount: rep,
			AmountToleranceRatio: d.cfg.AmountToleranceRatio,
			Cadence:              cadence,
			Members:              s.members,
			IntervalsDays:        gaps,
		},
		description: descriptionKey(s.members[0]),
	}
	if cadence == models.CadenceIrregular {
		return result
	}

	result.Confidence = scoreConfidence(len(s.members), gaps, s.amounts(), rep)
	result.MonthlyAmount = rep.Mul(cadence.MonthlyFactor()).Round(2)
	return result
}

// scoreConfidence starts from a saturating occurrence score and subtracts
// penalties for gap and amount variance. Two occurrences are the bare
// minimum; three or more materially raise confidence.
func scoreConfidence(occurrences int, gaps []int, amounts []decimal.Decimal, representative decimal.Decimal) int {
	base := baseOccurrenceScore + (occurrences-2)*perOccurrenceBonus
	if base > maxOccurrenceScore {
		base = maxOccurrenceScore
	}

	gapPenalty := 0
	if mean := meanInts(gaps); mean > 0 {
		gapPenalty = int(stdDevInts(gaps) / mean * 100)
		if gapPenalty > maxGapPenalty {
			gapPenalty = maxGapPenalty
		}
	}

	amountPenalty := int(relStdDevDecimals(amounts, representative) * 150)
	if amountPenalty > maxAmountPenalty {
		amountPenalty = maxAmountPenalty
	}

	conf := base - gapPenalty - amountPenalty
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return conf
}

func (q scoredSeries) summary() models.RecurringSeriesSummary {
	members := q.Series.Members
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return models.RecurringSeriesSummary{
		Description:    q.description,
		Amount:         q.Series.RepresentativeAmount,
		MonthlyAmount:  q.MonthlyAmount,
		Cadence:        q.Series.Cadence,
		Occurrences:    len(members),
		Confidence:     q.Confidence,
		FirstSeen:      members[0].PostedDate,
		LastSeen:       members[len(members)-1].PostedDate,
		TransactionIDs: ids,
	}
}
