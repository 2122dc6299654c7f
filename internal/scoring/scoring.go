// Package scoring holds the pure score, XP and level arithmetic.
// Nothing here touches storage or the clock; callers pass both in.
package scoring

import (
	"math"
	"time"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// Level curve: level = floor(xp^LevelExponent * LevelScale).
const (
	LevelExponent = 0.5
	LevelScale    = 2.5
)

// PenaltyXPFactor scales a penalty's score delta into an XP adjustment.
const PenaltyXPFactor = 0.2

// RewardPeriod is the duration that a reward of score_reward is defined over.
// A 3s tick earns 3/60 of the configured reward.
const RewardPeriod = time.Minute

// StreakStep maps a streak shorter than Below to Multiplier.
type StreakStep struct {
	Below      time.Duration
	Multiplier float64
}

// StreakSteps is the XP multiplier schedule for uninterrupted compliance.
// Streaks at or beyond the last step use MaxStreakMultiplier.
var StreakSteps = []StreakStep{
	{Below: 5 * time.Minute, Multiplier: 1.0},
	{Below: 20 * time.Minute, Multiplier: 1.2},
	{Below: time.Hour, Multiplier: 1.5},
}

// MaxStreakMultiplier applies to streaks of an hour or more.
const MaxStreakMultiplier = 2.0

// Delta is the change one tick applied to a state.
type Delta struct {
	Score float64
	XP    float64
}

// ApplyDailyReset zeroes the daily score when it belongs to another day.
// Returns true if a reset happened.
func ApplyDailyReset(state *domain.PolicyState, today time.Time) bool {
	day := today.Format(domain.ScoreDateLayout)
	if state.LastScoreDate == day {
		return false
	}
	state.DailyScore = 0
	state.LastScoreDate = day
	return true
}

// StreakMultiplier returns the XP multiplier for a streak length in seconds.
func StreakMultiplier(streakSeconds float64) float64 {
	streak := time.Duration(streakSeconds * float64(time.Second))
	for _, step := range StreakSteps {
		if streak < step.Below {
			return step.Multiplier
		}
	}
	return MaxStreakMultiplier
}

// ElapsedFraction converts a tick length into a fraction of RewardPeriod.
func ElapsedFraction(elapsed time.Duration) float64 {
	return float64(elapsed) / float64(RewardPeriod)
}

// RewardTick credits a compliant tick. The streak multiplier is read before
// the streak is extended by the caller.
func RewardTick(state *domain.PolicyState, profile domain.Profile, elapsedFraction float64) Delta {
	score := profile.ScoreReward * profile.ScoreRewardMult * elapsedFraction
	xp := score * profile.XPMult * StreakMultiplier(state.StreakSeconds)

	state.DailyScore += score
	addXP(state, xp)
	return Delta{Score: score, XP: xp}
}

// PenaltyTick debits one violation and breaks the streak.
func PenaltyTick(state *domain.PolicyState, profile domain.Profile) Delta {
	score := -math.Abs(profile.ScorePenalty) * profile.ScorePenaltyMult
	xp := score * PenaltyXPFactor

	state.DailyScore += score
	before := state.TotalXP
	addXP(state, xp)
	state.StreakSeconds = 0
	return Delta{Score: score, XP: state.TotalXP - before}
}

// ExtendStreak adds a compliant interval to the streak.
func ExtendStreak(state *domain.PolicyState, elapsed time.Duration) {
	state.StreakSeconds += elapsed.Seconds()
}

// Level maps total XP onto the level curve. Negative XP is level 0.
func Level(totalXP float64) int {
	if totalXP <= 0 {
		return 0
	}
	return int(math.Floor(math.Pow(totalXP, LevelExponent) * LevelScale))
}

// Recompute refreshes derived fields so they never drift from TotalXP.
func Recompute(state *domain.PolicyState) {
	if state.TotalXP < 0 {
		state.TotalXP = 0
	}
	state.Level = Level(state.TotalXP)
}

func addXP(state *domain.PolicyState, xp float64) {
	state.TotalXP += xp
	Recompute(state)
}
