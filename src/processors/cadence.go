package processors

import (
	"time"

	"github.com/username/finsight/backend/src/models"
)

// Cadence tolerance bands, in days.
const (
	weeklyGapMin      = 5
	weeklyGapMax      = 9
	biweeklyGapMin    = 11
	biweeklyGapMax    = 17
	semimonthlyGapMin = 12
	semimonthlyGapMax = 18
	monthlyGapMin     = 26
	monthlyGapMax     = 34

	anchorDayTolerance = 3
)

// classifyCadence maps a sorted series' day gaps onto a cadence. Any gap
// outside the matched band makes the series irregular, which disqualifies it
// as income.
func classifyCadence(dates []time.Time, gaps []int) models.Cadence {
	if len(gaps) == 0 {
		return models.CadenceIrregular
	}

	// Semimonthly is checked before biweekly: its 15/16-day gaps sit inside
	// the biweekly band, but only semimonthly pins two anchor days of month.
	if len(dates) >= 3 && allGapsWithin(gaps, semimonthlyGapMin, semimonthlyGapMax) && hasTwoAnchorDays(dates) {
		return models.CadenceSemimonthly
	}
	if allGapsWithin(gaps, weeklyGapMin, weeklyGapMax) {
		return models.CadenceWeekly
	}
	if allGapsWithin(gaps, biweeklyGapMin, biweeklyGapMax) {
		return models.CadenceBiweekly
	}
	if allGapsWithin(gaps, monthlyGapMin, monthlyGapMax) {
		return models.CadenceMonthly
	}
	return models.CadenceIrregular
}

func allGapsWithin(gaps []int, min, max int) bool {
	for _, g := range gaps {
		if g < min || g > max {
			return false
		}
	}
	return true
}

// hasTwoAnchorDays reports whether the member dates fall on at most two fixed
// days of the month (e.g. the 1st and the 15th), within a small tolerance.
func hasTwoAnchorDays(dates []time.Time) bool {
	var anchors []int
	for _, d := range dates {
		day := d.Day()
		matched := false
		for _, a := range anchors {
			if absInt(day-a) <= anchorDayTolerance {
				matched = true
				break
			}
		}
		if !matched {
			anchors = append(anchors, day)
			if len(anchors) > 2 {
				return false
			}
		}
	}
	return len(anchors) == 2
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
