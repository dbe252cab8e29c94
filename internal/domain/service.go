// Package domain implements the GymWars progression and competitive scoring
// engine: levels and ranks, streaks, personal records, hype rewards and the
// weekly leaderboard.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Recorder receives engine telemetry.
type Recorder interface {
	WorkoutCommitted(result WorkoutResult)
	HypeToggled(result HypeResult)
	Conflict(operation string)
	LeaderboardBuilt(elapsed time.Duration, size int)
}

// NoopRecorder discards telemetry.
type NoopRecorder struct{}

func (NoopRecorder) WorkoutCommitted(WorkoutResult)      {}
func (NoopRecorder) HypeToggled(HypeResult)              {}
func (NoopRecorder) Conflict(string)                     {}
func (NoopRecorder) LeaderboardBuilt(time.Duration, int) {}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLocation sets the time zone the weekly window is computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithFriendGraph attaches the friend graph used by FriendCohort.
func WithFriendGraph(g FriendGraph) Option {
	return func(s *Service) {
		s.friends = g
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates the engine over a Repository.
type Service struct {
	repo     Repository
	rules    Rules
	friends  FriendGraph
	clock    func() time.Time
	location *time.Location
	recorder Recorder
	logger   *log.Logger
}

// NewService constructs a Service. Rules are assumed valid.
func NewService(repo Repository, rules Rules, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		rules:    rules,
		clock:    time.Now,
		location: time.UTC,
		recorder: NoopRecorder{},
		logger:   log.New(log.Writer(), "[engine] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule tables in effect.
func (s *Service) Rules() Rules {
	return s.rules
}

// SetInput is one set of a submission.
type SetInput struct {
	SetNumber int
	Reps      int
	Weight    float64
}

// ExerciseInput is one exercise of a submission.
type ExerciseInput struct {
	ExerciseID string
	Sets       []SetInput
}

// SubmitWorkoutInput captures the payload from the API layer.
type SubmitWorkoutInput struct {
	UserID      string
	Name        string
	PerformedAt time.Time
	DurationMin *int
	Notes       string
	Exercises   []ExerciseInput
}

// SetResult reports the record flag assigned to one set.
type SetResult struct {
	ExerciseID       string
	SetNumber        int
	IsPersonalRecord bool
}

// WorkoutResult is returned to the submitter.
type WorkoutResult struct {
	WorkoutID  string
	UserID     string
	XPGained   int64
	XP         int64
	LevelUp    bool
	NewLevel   int
	Streak     int
	Transition StreakTransition
	Sets       []SetResult
	Ledger     []LedgerEntry
}

// PersonalRecords counts the sets flagged as records.
func (r WorkoutResult) PersonalRecords() int {
	n := 0
	for _, s := range r.Sets {
		if s.IsPersonalRecord {
			n++
		}
	}
	return n
}

// SubmitWorkout records a completed workout, advances the streak, flags
// personal records and credits XP. A concurrent update of the same user
// fails with ErrStaleUser; wrap the call in RetryOnConflict to retry with
// fresh reads.
func (s *Service) SubmitWorkout(ctx context.Context, input SubmitWorkoutInput) (*WorkoutResult, error) {
	now := s.clock().UTC()

	user, err := s.repo.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := ValidateXP(user.XP); err != nil {
		return nil, err
	}

	exercises := buildExercises(input.Exercises)
	history, err := s.repo.SetHistory(ctx, user.ID, exerciseIDs(exercises))
	if err != nil {
		return nil, err
	}
	exercises = DetectRecords(exercises, history)

	outcome := AdvanceStreak(user.Streak, user.LastWorkoutAt, now, s.rules.Rewards.StreakMilestones)
	entries := s.rules.Rewards.WorkoutRewards(user.ID, outcome, now)
	newXP := user.XP + SumLedger(entries)
	if newXP < user.XP {
		return nil, fmt.Errorf("%w: xp would decrease from %d to %d", ErrInvalidState, user.XP, newXP)
	}

	oldLevel := s.rules.Progression.Level(user.XP)
	newLevel := s.rules.Progression.Level(newXP)

	performedAt := input.PerformedAt
	if performedAt.IsZero() {
		performedAt = now
	}
	workout := Workout{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Name:        input.Name,
		PerformedAt: performedAt.UTC(),
		DurationMin: input.DurationMin,
		Notes:       input.Notes,
		Exercises:   exercises,
		CreatedAt:   now,
	}

	commit := WorkoutCommit{
		Workout:         workout,
		ExpectedVersion: user.Version,
		XP:              newXP,
		Streak:          outcome.Streak,
		LastWorkoutAt:   outcome.LastWorkoutAt,
		Ledger:          entries,
		Transition:      outcome.Transition,
		LevelUp:         newLevel > oldLevel,
		NewLevel:        newLevel,
	}
	if err := s.repo.CommitWorkout(ctx, commit); err != nil {
		if errors.Is(err, ErrConflict) {
			s.recorder.Conflict("submit_workout")
		}
		return nil, err
	}

	result := WorkoutResult{
		WorkoutID:  workout.ID,
		UserID:     user.ID,
		XPGained:   newXP - user.XP,
		XP:         newXP,
		LevelUp:    commit.LevelUp,
		NewLevel:   newLevel,
		Streak:     outcome.Streak,
		Transition: outcome.Transition,
		Ledger:     entries,
	}
	for _, ex := range exercises {
		for _, set := range ex.Sets {
			result.Sets = append(result.Sets, SetResult{
				ExerciseID:       ex.ExerciseID,
				SetNumber:        set.SetNumber,
				IsPersonalRecord: set.IsPersonalRecord,
			})
		}
	}

	s.recorder.WorkoutCommitted(result)
	if result.LevelUp {
		s.logger.Printf("user %s reached level %d (xp=%d)", user.ID, newLevel, newXP)
	}
	return &result, nil
}

// HypeResult reports the state after a toggle. XPAwarded is the receiver's
// reward, zero when the toggle removed the hype.
type HypeResult struct {
	Hyped      bool
	ReceiverID string
	XPAwarded  int64
}

// ToggleHype flips the giver's hype on a workout. Creating a hype credits the
// workout owner once; removing it takes nothing back.
func (s *Service) ToggleHype(ctx context.Context, workoutID, giverID string) (HypeResult, error) {
	owner, err := s.repo.WorkoutOwner(ctx, workoutID)
	if err != nil {
		return HypeResult{}, err
	}
	if owner == "" {
		return HypeResult{}, ErrWorkoutNotFound
	}
	if owner == giverID {
		return HypeResult{}, ErrSelfHype
	}

	giver, err := s.repo.GetUser(ctx, giverID)
	if err != nil {
		return HypeResult{}, err
	}
	if giver == nil {
		return HypeResult{}, ErrUserNotFound
	}

	now := s.clock().UTC()
	reward := s.rules.Rewards.HypeReward(owner, now)
	hyped, err := s.repo.ToggleHype(ctx, HypeToggle{
		WorkoutID:  workoutID,
		GiverID:    giverID,
		ReceiverID: owner,
		Reward:     reward,
		At:         now,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.recorder.Conflict("toggle_hype")
		}
		return HypeResult{}, err
	}
	result := HypeResult{Hyped: hyped, ReceiverID: owner}
	if hyped {
		result.XPAwarded = reward.Amount
	}
	s.recorder.HypeToggled(result)
	return result, nil
}

// WorkoutDetail is a workout as seen by one viewer.
type WorkoutDetail struct {
	Workout       Workout
	OwnerUsername string
	HypeCount     int
	ViewerHyped   bool
	ViewerIsOwner bool
}

// Workout loads a workout with its stored record flags and the hype state
// relative to viewerID.
func (s *Service) Workout(ctx context.Context, workoutID, viewerID string) (*WorkoutDetail, error) {
	workout, err := s.repo.Workout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if workout == nil {
		return nil, ErrWorkoutNotFound
	}
	count, hyped, err := s.repo.HypeState(ctx, workoutID, viewerID)
	if err != nil {
		return nil, err
	}

	detail := &WorkoutDetail{
		Workout:       *workout,
		HypeCount:     count,
		ViewerHyped:   hyped,
		ViewerIsOwner: workout.UserID == viewerID,
	}
	owner, err := s.repo.GetUser(ctx, workout.UserID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		detail.OwnerUsername = owner.Username
	}
	return detail, nil
}

// LeaderboardQuery selects the cohort and the instant whose week is scored.
type LeaderboardQuery struct {
	CohortUserIDs []string
	Now           time.Time
}

// Leaderboard ranks the cohort by weekly score. Unknown user IDs are skipped.
func (s *Service) Leaderboard(ctx context.Context, query LeaderboardQuery) (*Leaderboard, error) {
	start := time.Now()
	now := query.Now
	if now.IsZero() {
		now = s.clock()
	}
	window := WeekWindow(now, s.location)

	ids := dedupe(query.CohortUserIDs)
	members, err := s.repo.CohortActivity(ctx, ids, window)
	if err != nil {
		return nil, err
	}

	// Present members in cohort order so equal scores stay deterministic for
	// a given request.
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	ordered := make([]CohortMember, len(ids))
	present := make([]bool, len(ids))
	for _, m := range members {
		if pos, ok := order[m.User.ID]; ok {
			ordered[pos] = m
			present[pos] = true
		}
	}
	cohort := make([]CohortMember, 0, len(members))
	for i, m := range ordered {
		if present[i] {
			cohort = append(cohort, m)
		}
	}

	board := &Leaderboard{Window: window, Entries: RankCohort(cohort, window, s.rules)}
	s.recorder.LeaderboardBuilt(time.Since(start), len(board.Entries))
	return board, nil
}

// FriendCohort returns userID followed by their friends.
func (s *Service) FriendCohort(ctx context.Context, userID string) ([]string, error) {
	cohort := []string{userID}
	if s.friends == nil {
		return cohort, nil
	}
	friends, err := s.friends.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dedupe(append(cohort, friends...)), nil
}

// ExerciseHistory returns a user's sessions for one exercise.
func (s *Service) ExerciseHistory(ctx context.Context, userID, exerciseID string) (*ExerciseHistory, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	sets, err := s.repo.SetHistory(ctx, userID, []string{exerciseID})
	if err != nil {
		return nil, err
	}
	history := BuildExerciseHistory(exerciseID, sets[exerciseID])
	return &history, nil
}

// ProgressSnapshot is the derived progression view of a user.
type ProgressSnapshot struct {
	UserID        string
	XP            int64
	Level         int
	NextLevelXP   int64
	LevelProgress float64
	Rank          Tier
	Streak        int
	LastWorkoutAt *time.Time
	BMI           *float64
	BMICategory   BMICategory
}

// Progress derives level, rank and body metrics from stored state.
func (s *Service) Progress(ctx context.Context, userID string) (*ProgressSnapshot, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := ValidateXP(user.XP); err != nil {
		return nil, err
	}

	p := s.rules.Progression
	level := p.Level(user.XP)
	snapshot := &ProgressSnapshot{
		UserID:        user.ID,
		XP:            user.XP,
		Level:         level,
		NextLevelXP:   p.XPForLevel(level),
		LevelProgress: p.LevelProgress(user.XP),
		Rank:          p.Rank(user.XP),
		Streak:        user.Streak,
		LastWorkoutAt: user.LastWorkoutAt,
	}
	if user.HeightCm != nil && user.WeightKg != nil && *user.HeightCm > 0 {
		bmi := BMI(*user.WeightKg, *user.HeightCm)
		snapshot.BMI = &bmi
		snapshot.BMICategory = CategorizeBMI(bmi)
	}
	return snapshot, nil
}

// Ledger pages a user's ledger entries, newest first.
func (s *Service) Ledger(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, nil, err
	}
	return s.repo.ListLedger(ctx, userID, cursor, limit)
}

// VerifyLedger checks that the user's cached XP equals the sum of their
// ledger entries.
func (s *Service) VerifyLedger(ctx context.Context, userID string) error {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	total, err := s.repo.LedgerTotal(ctx, userID)
	if err != nil {
		return err
	}
	if total != user.XP {
		s.logger.Printf("ledger mismatch for user %s: xp=%d ledger=%d", userID, user.XP, total)
		return fmt.Errorf("%w: user %s xp=%d ledger=%d", ErrLedgerMismatch, userID, user.XP, total)
	}
	return ValidateXP(user.XP)
}

// LedgerAudit is the outcome of checking one user's ledger.
type LedgerAudit struct {
	UserID      string
	XP          int64
	LedgerTotal int64
	// Err is nil when the user is consistent. It wraps ErrNotFound or
	// ErrInvalidState otherwise.
	Err error
}

// AuditLedger checks every listed user and reports each result. Store
// failures abort the audit.
func (s *Service) AuditLedger(ctx context.Context, userIDs []string) ([]LedgerAudit, error) {
	audits := make([]LedgerAudit, 0, len(userIDs))
	for _, id := range dedupe(userIDs) {
		audit := LedgerAudit{UserID: id}
		user, err := s.repo.GetUser(ctx, id)
		if err != nil {
			return audits, err
		}
		if user == nil {
			audit.Err = ErrUserNotFound
			audits = append(audits, audit)
			continue
		}
		audit.XP = user.XP
		if audit.LedgerTotal, err = s.repo.LedgerTotal(ctx, id); err != nil {
			return audits, err
		}
		switch {
		case audit.LedgerTotal != user.XP:
			audit.Err = fmt.Errorf("%w: user %s xp=%d ledger=%d", ErrLedgerMismatch, id, user.XP, audit.LedgerTotal)
			s.logger.Printf("ledger mismatch for user %s: xp=%d ledger=%d", id, user.XP, audit.LedgerTotal)
		default:
			audit.Err = ValidateXP(user.XP)
		}
		audits = append(audits, audit)
	}
	return audits, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func buildExercises(inputs []ExerciseInput) []WorkoutExercise {
	exercises := make([]WorkoutExercise, 0, len(inputs))
	for i, in := range inputs {
		ex := WorkoutExercise{
			ID:         uuid.NewString(),
			ExerciseID: in.ExerciseID,
			OrderIndex: i,
			Sets:       make([]ExerciseSet, 0, len(in.Sets)),
		}
		for _, set := range in.Sets {
			ex.Sets = append(ex.Sets, ExerciseSet{
				ID:        uuid.NewString(),
				SetNumber: set.SetNumber,
				Reps:      set.Reps,
				Weight:    set.Weight,
			})
		}
		exercises = append(exercises, ex)
	}
	return exercises
}

func exerciseIDs(exercises []WorkoutExercise) []string {
	ids := make([]string, 0, len(exercises))
	for _, ex := range exercises {
		ids = append(ids, ex.ExerciseID)
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
