// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// CurrentSchemaVersion is the schema version written with every PolicyState.
// Records without a version (0) come from the legacy control script and are
// migrated on read.
const CurrentSchemaVersion = 1

// DefaultProfileName is the profile selected when no state exists yet.
const DefaultProfileName = "strict"

// ScoreDateLayout is the calendar-day format used for LastScoreDate.
const ScoreDateLayout = "2006-01-02"

// PolicyState is the single persisted record shared by the daemon and the
// control commands.
type PolicyState struct {
	SchemaVersion  int     `json:"schema_version"`
	LockEnabled    bool    `json:"lock_enabled"`
	CurrentProfile string  `json:"current_profile"`
	DailyScore     float64 `json:"daily_score"`
	LastScoreDate  string  `json:"last_score_date,omitempty"`
	TotalXP        float64 `json:"total_xp"`
	Level          int     `json:"level"` // Derived from TotalXP on every read/write
	StreakSeconds  float64 `json:"streak_seconds"`
	Revision       int64   `json:"revision"`    // Compare-and-swap token, bumped on every write
	LastUpdate     int64   `json:"last_update"` // Unix seconds of the last write
}

// DefaultPolicyState returns the state used when nothing has been persisted
// yet or the persisted record is unreadable.
func DefaultPolicyState() PolicyState {
	return PolicyState{
		SchemaVersion:  CurrentSchemaVersion,
		LockEnabled:    false,
		CurrentProfile: DefaultProfileName,
	}
}

// ScoreFor returns the daily score as it applies to the given day.
// A score recorded on another day is stale and reads as zero.
func (s PolicyState) ScoreFor(day time.Time) float64 {
	if s.LastScoreDate != day.Format(ScoreDateLayout) {
		return 0
	}
	return s.DailyScore
}

// Profile is a named, read-only bundle of enforcement parameters.
type Profile struct {
	Name             string   `yaml:"name" json:"name"`
	IdleLimitMinutes float64  `yaml:"idle_limit_minutes" json:"idle_limit_minutes"`
	Blacklist        []string `yaml:"blacklist" json:"blacklist"`
	Whitelist        []string `yaml:"whitelist" json:"whitelist"`
	ScoreReward      float64  `yaml:"score_reward" json:"score_reward"`
	ScorePenalty     float64  `yaml:"score_penalty" json:"score_penalty"`
	ScoreRewardMult  float64  `yaml:"score_reward_mult" json:"score_reward_mult"`
	ScorePenaltyMult float64  `yaml:"score_penalty_mult" json:"score_penalty_mult"`
	XPMult           float64  `yaml:"xp_mult" json:"xp_mult"`

	// KillDistracting defaults to true when absent.
	KillDistracting *bool `yaml:"kill_distracting_immediately,omitempty" json:"kill_distracting_immediately,omitempty"`
	// CorrectionOnViolation asks the collaborator for a correction after each violation.
	CorrectionOnViolation bool `yaml:"correction_on_violation" json:"correction_on_violation"`
}

// IdleLimit returns the idle threshold. Zero disables the idle branch.
func (p Profile) IdleLimit() time.Duration {
	if p.IdleLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(p.IdleLimitMinutes * float64(time.Minute))
}

// ShouldKill reports whether violating processes are terminated.
func (p Profile) ShouldKill() bool {
	return p.KillDistracting == nil || *p.KillDistracting
}

// IsEmpty reports whether the profile carries no enforcement at all.
func (p Profile) IsEmpty() bool {
	return len(p.Blacklist) == 0 && p.IdleLimitMinutes <= 0 && p.ScoreReward == 0
}

// Normalized returns a copy with zero multipliers replaced by 1.0.
func (p Profile) Normalized() Profile {
	if p.ScoreRewardMult == 0 {
		p.ScoreRewardMult = 1
	}
	if p.ScorePenaltyMult == 0 {
		p.ScorePenaltyMult = 1
	}
	if p.XPMult == 0 {
		p.XPMult = 1
	}
	return p
}

// ProcessObservation is one running process seen during a scan.
type ProcessObservation struct {
	PID         int
	Name        string
	CommandLine string
}

// Classification is the Matcher verdict for one observation.
type Classification int

const (
	Neutral Classification = iota
	Whitelisted
	Blacklisted
)

func (c Classification) String() string {
	switch c {
	case Whitelisted:
		return "whitelisted"
	case Blacklisted:
		return "blacklisted"
	default:
		return "neutral"
	}
}

// ViolationEvent records one blacklisted process caught during a cycle.
// It only ever lives in a log line.
type ViolationEvent struct {
	ID        string
	Name      string
	PID       int
	Timestamp time.Time
}

// EventSource identifies who asked for a profile to be prepared.
type EventSource string

const (
	SourceControl EventSource = "control"
	SourceDaemon  EventSource = "daemon"
)

// ProfileEvent asks the environment to prepare for a profile switch.
type ProfileEvent struct {
	ID        string
	Profile   string
	Source    EventSource
	Timestamp time.Time
}
