package domain

import (
	"fmt"
	"math"
	"sort"
)

// ValidateXP asserts the XP contract of the progression model.
func ValidateXP(xp int64) error {
	if xp < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeXP, xp)
	}
	return nil
}

// Level maps cumulative XP to a level starting at 1. Negative XP is treated
// as zero; use ValidateXP to assert the contract.
func (p Progression) Level(xp int64) int {
	if xp <= 0 {
		return 1
	}
	base := p.LevelBase
	n := int64(math.Sqrt(float64(xp) / float64(base)))
	// Correct float rounding at exact squares.
	for reached(n+1, base, xp) {
		n++
	}
	for n > 0 && !reached(n, base, xp) {
		n--
	}
	return int(n) + 1
}

// reached reports n*n*base <= xp without overflowing.
func reached(n, base, xp int64) bool {
	return n <= xp/base/n
}

// XPForLevel returns the XP threshold at which a user currently at level
// reaches level+1. Thresholds beyond int64 saturate at math.MaxInt64.
func (p Progression) XPForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	l := int64(level)
	if l > math.MaxInt64/p.LevelBase/l {
		return math.MaxInt64
	}
	return l * l * p.LevelBase
}

// LevelProgress returns the percentage [0, 100] travelled from the current
// level threshold to the next one.
func (p Progression) LevelProgress(xp int64) float64 {
	level := p.Level(xp)
	lower := p.XPForLevel(level - 1)
	upper := p.XPForLevel(level)
	if upper <= lower {
		return 100
	}
	progress := float64(xp-lower) / float64(upper-lower) * 100
	return math.Min(math.Max(progress, 0), 100)
}

// Rank returns the highest tier whose minimum XP is <= xp.
func (p Progression) Rank(xp int64) Tier {
	if len(p.Tiers) == 0 {
		return Tier{}
	}
	idx := sort.Search(len(p.Tiers), func(i int) bool {
		return p.Tiers[i].MinXP > xp
	})
	if idx == 0 {
		return p.Tiers[0]
	}
	return p.Tiers[idx-1]
}

// BMICategory buckets a body mass index.
type BMICategory string

const (
	BMIUnderweight BMICategory = "underweight"
	BMINormal      BMICategory = "normal"
	BMIOverweight  BMICategory = "overweight"
	BMIObese       BMICategory = "obese"
)

// BMI computes weight / height² with height in centimetres. Returns 0 for a
// non-positive height.
func BMI(weightKg, heightCm float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	heightM := heightCm / 100
	return weightKg / (heightM * heightM)
}

// CategorizeBMI applies the 18.5 / 25 / 30 thresholds.
func CategorizeBMI(bmi float64) BMICategory {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 25:
		return BMINormal
	case bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}
