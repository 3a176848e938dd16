// Package scoring maps wellness audits to 0-100 scores.
package scoring

import (
	"math"

	"go.aimuz.me/ergowatch/internal/types"
)

// Points awarded per category.
const (
	IdealPoints     = 25
	SecondaryPoints = 10
	MaxScore        = IdealPoints * 4
)

// tiers holds the ideal and secondary status of every category.
var tiers = map[types.Category][2]types.Status{
	types.CategoryNeck:     {types.StatusNeutral, types.StatusSlightlyForward},
	types.CategoryDistance: {types.StatusOptimal, types.StatusTooFar},
	types.CategoryBlinking: {types.StatusNormal, types.StatusLow},
	types.CategoryFocus:    {types.StatusFocused, types.StatusDistracted},
}

// Ideal returns the best status of c.
func Ideal(c types.Category) types.Status {
	return tiers[c][0]
}

// Secondary returns the second-best status of c.
func Secondary(c types.Category) types.Status {
	return tiers[c][1]
}

// IsIdeal reports whether s is the best status of c.
func IsIdeal(c types.Category, s types.Status) bool {
	t, ok := tiers[c]
	return ok && s == t[0]
}

// IsSecondary reports whether s is the second-best status of c.
func IsSecondary(c types.Category, s types.Status) bool {
	t, ok := tiers[c]
	return ok && s == t[1]
}

// CategoryPoints returns the points s earns for c. Unknown and worst-tier
// statuses earn nothing.
func CategoryPoints(c types.Category, s types.Status) int {
	switch {
	case IsIdeal(c, s):
		return IdealPoints
	case IsSecondary(c, s):
		return SecondaryPoints
	}
	return 0
}

// Score returns the 0-100 score of a. Only the four status fields matter.
func Score(a types.WellnessAudit) int {
	total := 0
	for _, c := range types.Categories {
		total += CategoryPoints(c, a.Assessment(c).Status)
	}
	return total
}

// Average returns round(mean(Score)) over audits. An empty history scores
// MaxScore: nothing has deviated yet.
func Average(audits []types.WellnessAudit) int {
	if len(audits) == 0 {
		return MaxScore
	}
	sum := 0
	for _, a := range audits {
		sum += Score(a)
	}
	return int(math.Round(float64(sum) / float64(len(audits))))
}
