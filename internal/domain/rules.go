package domain

import (
	"errors"
	"fmt"
)

// Tier is a named XP band.
type Tier struct {
	Name  string
	MinXP int64
	Icon  string
}

// Milestone grants Bonus XP when a continued streak reaches exactly Days.
type Milestone struct {
	Days  int
	Bonus int64
}

// Progression parameterises the level curve and rank tiers.
type Progression struct {
	// LevelBase is the XP unit of the quadratic level curve:
	// level = floor(sqrt(xp/LevelBase)) + 1.
	LevelBase int64
	// Tiers must be sorted ascending by MinXP and start at 0.
	Tiers []Tier
}

// Rewards holds the XP granted per event.
type Rewards struct {
	CompleteWorkout  int64
	ReceiveHype      int64
	StreakMilestones []Milestone
}

// Scoring holds the weekly leaderboard weights.
type Scoring struct {
	WorkoutPoints float64
	VolumeDivisor float64
	StreakPoints  float64
}

// Rules is the full configuration of the engine.
type Rules struct {
	Progression Progression
	Rewards     Rewards
	Scoring     Scoring
}

// DefaultRules returns the stock GymWars tables.
func DefaultRules() Rules {
	return Rules{
		Progression: Progression{
			LevelBase: 50,
			Tiers: []Tier{
				{Name: "Rookie", MinXP: 0, Icon: "🥉"},
				{Name: "Iron", MinXP: 100, Icon: "⚙️"},
				{Name: "Bronze", MinXP: 300, Icon: "🥈"},
				{Name: "Silver", MinXP: 700, Icon: "🥈"},
				{Name: "Gold", MinXP: 1500, Icon: "🥇"},
				{Name: "Platinum", MinXP: 3000, Icon: "💎"},
				{Name: "Diamond", MinXP: 6000, Icon: "💠"},
				{Name: "Legend", MinXP: 10000, Icon: "👑"},
			},
		},
		Rewards: Rewards{
			CompleteWorkout: 50,
			ReceiveHype:     5,
			StreakMilestones: []Milestone{
				{Days: 3, Bonus: 30},
				{Days: 7, Bonus: 75},
				{Days: 30, Bonus: 200},
			},
		},
		Scoring: Scoring{
			WorkoutPoints: 20,
			VolumeDivisor: 100,
			StreakPoints:  5,
		},
	}
}

// Validate checks the structural invariants the engine relies on.
func (r Rules) Validate() error {
	var errs []error
	p := r.Progression
	if p.LevelBase <= 0 {
		errs = append(errs, errors.New("progression: level base must be > 0"))
	}
	if len(p.Tiers) == 0 {
		errs = append(errs, errors.New("progression: at least one tier is required"))
	} else if p.Tiers[0].MinXP != 0 {
		errs = append(errs, errors.New("progression: lowest tier must start at 0 xp"))
	}
	for i := 1; i < len(p.Tiers); i++ {
		if p.Tiers[i].MinXP <= p.Tiers[i-1].MinXP {
			errs = append(errs, fmt.Errorf("progression: tier %q must have a higher min xp than %q", p.Tiers[i].Name, p.Tiers[i-1].Name))
		}
	}

	if r.Rewards.CompleteWorkout < 0 || r.Rewards.ReceiveHype < 0 {
		errs = append(errs, errors.New("rewards: amounts must be >= 0"))
	}
	seen := make(map[int]struct{}, len(r.Rewards.StreakMilestones))
	for _, m := range r.Rewards.StreakMilestones {
		if m.Days < 2 {
			errs = append(errs, fmt.Errorf("rewards: milestone %d days is unreachable by a continued streak", m.Days))
		}
		if m.Bonus < 0 {
			errs = append(errs, fmt.Errorf("rewards: milestone %d bonus must be >= 0", m.Days))
		}
		if _, dup := seen[m.Days]; dup {
			errs = append(errs, fmt.Errorf("rewards: duplicate milestone %d", m.Days))
		}
		seen[m.Days] = struct{}{}
	}

	if r.Scoring.VolumeDivisor <= 0 {
		errs = append(errs, errors.New("scoring: volume divisor must be > 0"))
	}
	return errors.Join(errs...)
}
