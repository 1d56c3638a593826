package score

import "github.com/shopspring/decimal"

// Tier is the feedback band a finished attempt falls into.
type Tier string

const (
	TierExcellent        Tier = "excellent"
	TierGood             Tier = "good"
	TierFair             Tier = "fair"
	TierNeedsImprovement Tier = "needs_improvement"
)

var tiers = []struct {
	min  int
	tier Tier
}{
	{90, TierExcellent},
	{70, TierGood},
	{50, TierFair},
}

// Percentage returns 100*score/total rounded half up. The ratio is computed exactly so
// values such as 2/3 and 9/20 round the same way on every platform.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}

	return int(decimal.NewFromInt(int64(score)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 8).
		Round(0).
		IntPart())
}

// TierOf maps a percentage to its feedback tier. Thresholds are checked from the highest down.
func TierOf(percentage int) Tier {
	for _, t := range tiers {
		if percentage >= t.min {
			return t.tier
		}
	}

	return TierNeedsImprovement
}
