package domain

// IsPersonalRecord reports whether a set of the given weight beats every set
// in history, the user's sets for the same exercise committed before the
// current workout. Ties are not records. With no history, any weight above
// zero is a record; a bodyweight first set is not.
func IsPersonalRecord(weight float64, history []HistoricalSet) bool {
	var best float64
	for _, prior := range history {
		if prior.Weight > best {
			best = prior.Weight
		}
	}
	// best starts at 0, which also covers the empty-history rule.
	return weight > best
}

// DetectRecords flags every set of a submission. Each set is judged on its own
// against prior history only; sets of the same workout never influence each
// other.
func DetectRecords(exercises []WorkoutExercise, history map[string][]HistoricalSet) []WorkoutExercise {
	out := make([]WorkoutExercise, len(exercises))
	for i, ex := range exercises {
		prior := history[ex.ExerciseID]
		sets := make([]ExerciseSet, len(ex.Sets))
		for j, set := range ex.Sets {
			set.IsPersonalRecord = IsPersonalRecord(set.Weight, prior)
			sets[j] = set
		}
		ex.Sets = sets
		out[i] = ex
	}
	return out
}
