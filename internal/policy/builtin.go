package policy

import "github.com/sudo-0-AM/ArcheTYPE/internal/domain"

// distractions shared by the built-in profiles.
var distractions = []string{
	"steam",
	"dota2",
	"discord",
	"youtube",
	"netflix",
	"reddit",
	"twitch",
	"instagram",
}

// StrictProfile blocks every known distraction and has the harshest penalty.
func StrictProfile() domain.Profile {
	return domain.Profile{
		Name:             "strict",
		IdleLimitMinutes: 10,
		Blacklist:        append([]string(nil), distractions...),
		ScoreReward:      5,
		ScorePenalty:     10,
		ScoreRewardMult:  1.0,
		ScorePenaltyMult: 1.5,
		XPMult:           1.0,
	}
}

// CodingProfile allows editors and terminals and tolerates longer idle time.
func CodingProfile() domain.Profile {
	return domain.Profile{
		Name:             "coding",
		IdleLimitMinutes: 15,
		Blacklist:        append([]string(nil), distractions...),
		Whitelist:        []string{"code", "nvim", "vim", "konsole", "alacritty", "jetbrains"},
		ScoreReward:      5,
		ScorePenalty:     8,
		ScoreRewardMult:  0.8,
		ScorePenaltyMult: 1.0,
		XPMult:           1.2,
	}
}

// StudyProfile blocks entertainment but keeps reference material reachable.
func StudyProfile() domain.Profile {
	return domain.Profile{
		Name:                  "study",
		IdleLimitMinutes:      20,
		Blacklist:             []string{"steam", "dota2", "netflix", "twitch", "discord"},
		Whitelist:             []string{"okular", "zotero", "anki"},
		ScoreReward:           4,
		ScorePenalty:          6,
		ScoreRewardMult:       1.0,
		ScorePenaltyMult:      1.0,
		XPMult:                1.0,
		CorrectionOnViolation: true,
	}
}
