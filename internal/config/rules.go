package config

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Chirraaa/gymbros/internal/domain"
)

type rulesFile struct {
	Progression progressionSection `toml:"progression"`
	Rewards     rewardsSection     `toml:"rewards"`
	Scoring     scoringSection     `toml:"scoring"`
}

type progressionSection struct {
	LevelBase int64         `toml:"level_base,omitempty"`
	Tiers     []tierSection `toml:"tiers,omitempty"`
}

type tierSection struct {
	Name  string `toml:"name"`
	MinXP int64  `toml:"min_xp"`
	Icon  string `toml:"icon,omitempty"`
}

type rewardsSection struct {
	CompleteWorkout  *int64             `toml:"complete_workout,omitempty"`
	ReceiveHype      *int64             `toml:"receive_hype,omitempty"`
	StreakMilestones []milestoneSection `toml:"streak_milestones,omitempty"`
}

type milestoneSection struct {
	Days  int   `toml:"days"`
	Bonus int64 `toml:"bonus"`
}

type scoringSection struct {
	WorkoutPoints *float64 `toml:"workout_points,omitempty"`
	VolumeDivisor *float64 `toml:"volume_divisor,omitempty"`
	StreakPoints  *float64 `toml:"streak_points,omitempty"`
}

// LoadRules returns the default rules, overridden by the TOML file at path
// when path is non-empty. Keys missing from the file keep their defaults;
// a tiers or streak_milestones list replaces the default list whole.
func LoadRules(path string) (domain.Rules, error) {
	rules := domain.DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	var file rulesFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return domain.Rules{}, fmt.Errorf("rules %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	file.apply(&rules)
	if err := rules.Validate(); err != nil {
		return domain.Rules{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// WriteRules encodes rules as TOML in the format LoadRules reads.
func WriteRules(w io.Writer, rules domain.Rules) error {
	return toml.NewEncoder(w).Encode(fromRules(rules))
}

func (f rulesFile) apply(r *domain.Rules) {
	if f.Progression.LevelBase != 0 {
		r.Progression.LevelBase = f.Progression.LevelBase
	}
	if f.Progression.Tiers != nil {
		r.Progression.Tiers = make([]domain.Tier, 0, len(f.Progression.Tiers))
		for _, t := range f.Progression.Tiers {
			r.Progression.Tiers = append(r.Progression.Tiers, domain.Tier{Name: t.Name, MinXP: t.MinXP, Icon: t.Icon})
		}
	}
	if f.Rewards.CompleteWorkout != nil {
		r.Rewards.CompleteWorkout = *f.Rewards.CompleteWorkout
	}
	if f.Rewards.ReceiveHype != nil {
		r.Rewards.ReceiveHype = *f.Rewards.ReceiveHype
	}
	if f.Rewards.StreakMilestones != nil {
		r.Rewards.StreakMilestones = make([]domain.Milestone, 0, len(f.Rewards.StreakMilestones))
		for _, m := range f.Rewards.StreakMilestones {
			r.Rewards.StreakMilestones = append(r.Rewards.StreakMilestones, domain.Milestone{Days: m.Days, Bonus: m.Bonus})
		}
	}
	if f.Scoring.WorkoutPoints != nil {
		r.Scoring.WorkoutPoints = *f.Scoring.WorkoutPoints
	}
	if f.Scoring.VolumeDivisor != nil {
		r.Scoring.VolumeDivisor = *f.Scoring.VolumeDivisor
	}
	if f.Scoring.StreakPoints != nil {
		r.Scoring.StreakPoints = *f.Scoring.StreakPoints
	}
}

func fromRules(r domain.Rules) rulesFile {
	f := rulesFile{
		Progression: progressionSection{LevelBase: r.Progression.LevelBase},
		Rewards: rewardsSection{
			CompleteWorkout: &r.Rewards.CompleteWorkout,
			ReceiveHype:     &r.Rewards.ReceiveHype,
		},
		Scoring: scoringSection{
			WorkoutPoints: &r.Scoring.WorkoutPoints,
			VolumeDivisor: &r.Scoring.VolumeDivisor,
			StreakPoints:  &r.Scoring.StreakPoints,
		},
	}
	for _, t := range r.Progression.Tiers {
		f.Progression.Tiers = append(f.Progression.Tiers, tierSection{Name: t.Name, MinXP: t.MinXP, Icon: t.Icon})
	}
	for _, m := range r.Rewards.StreakMilestones {
		f.Rewards.StreakMilestones = append(f.Rewards.StreakMilestones, milestoneSection{Days: m.Days, Bonus: m.Bonus})
	}
	return f
}
