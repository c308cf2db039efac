package processors

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// medianDecimal returns the median of the given amounts. Used as the robust
// representative amount of a series so a single outlier deposit does not skew
// the monthly estimate the way a mean would.
func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// stdDevInts is the population standard deviation of the given values.
func stdDevInts(values []int) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := meanInts(values)
	var ss float64
	for _, v := range values {
		d := float64(v) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// relStdDevDecimals is the standard deviation of values relative to center,
// as a ratio. Returns 0 when center is zero.
func relStdDevDecimals(values []decimal.Decimal, center decimal.Decimal) float64 {
	if len(values) < 2 || center.IsZero() {
		return 0
	}
	c, _ := center.Float64()
	var ss float64
	for _, v := range values {
		f, _ := v.Float64()
		d := f - c
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(values))) / math.Abs(c)
}

// dayGaps returns the day intervals between consecutive dates. Dates must
// already be sorted ascending.
func dayGaps(dates []time.Time) []int {
	if len(dates) < 2 {
		return nil
	}
	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, int(math.Round(dates[i].Sub(dates[i-1]).Hours()/24)))
	}
	return gaps
}

const daysPerMonth = 30.4375 // 365.25 / 12

// MonthsBetween returns the fractional number of months from a to b, negative
// when b precedes a.
func MonthsBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24 / daysPerMonth
}

// AddMonths advances t by a fractional number of months.
func AddMonths(t time.Time, months float64) time.Time {
	return t.Add(time.Duration(months * daysPerMonth * 24 * float64(time.Hour)))
}
