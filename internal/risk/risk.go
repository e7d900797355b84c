// Package risk implements the fraud risk scoring engine.
//
// Everything here is pure: a score and a set of behavioral signals go in,
// a new score and level come out. Side effects (reading accounts, writing
// abuse logs) belong to the orchestrators that call this package.
package risk

// Level classifies a risk score.
type Level string

const (
	LevelSafe       Level = "safe"
	LevelSuspicious Level = "suspicious"
	LevelHigh       Level = "high"
	LevelBanned     Level = "banned"
)

// Policy constants. Tunable as one table; the relationships between them
// (banned > high > suspicious, recovery < any single penalty) are what the
// engine relies on, not the exact values.
const (
	// Recovery is subtracted from the stored score on every evaluation,
	// so a single past incident decays instead of penalizing forever.
	Recovery = 10

	// Signal weights.
	WeightTooFast        = 20
	WeightDeviceMismatch = 40
	WeightCrowdedIP      = 30
	WeightSharedDevice   = 50

	// Level thresholds, evaluated highest first.
	ThresholdBanned     = 100
	ThresholdHigh       = 60
	ThresholdSuspicious = 30

	// MinRewardIntervalMillis is the minimum gap between two grants
	// before the second one counts as a too-fast request.
	MinRewardIntervalMillis = 20000

	// CrowdedIPAccounts is the number of *other* accounts on the same IP
	// above which the IP counts as crowded.
	CrowdedIPAccounts = 3

	// SharedDeviceOwners is the number of distinct other users seen with
	// the same device fingerprint at which the fingerprint counts as shared.
	SharedDeviceOwners = 3
)

// Signals are the per-request behavioral inputs to the scoring pass.
type Signals struct {
	TooFastRequest bool
	DeviceMismatch bool
	CrowdedIP      bool
	SharedDevice   bool
}

// BaseScore decays the stored score by Recovery, floored at zero.
func BaseScore(existing float64) float64 {
	s := existing - Recovery
	if s < 0 {
		return 0
	}
	return s
}

// ApplyDeltas adds the weight of each active signal to base.
func ApplyDeltas(base float64, sig Signals) float64 {
	score := base
	if sig.TooFastRequest {
		score += WeightTooFast
	}
	if sig.DeviceMismatch {
		score += WeightDeviceMismatch
	}
	if sig.CrowdedIP {
		score += WeightCrowdedIP
	}
	if sig.SharedDevice {
		score += WeightSharedDevice
	}
	return score
}

// Clamp bounds a score to [0, 100].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// LevelFor maps a score to its level. Thresholds are checked top-down so
// a score of exactly 100 is banned, never high.
func LevelFor(score float64) Level {
	switch {
	case score >= ThresholdBanned:
		return LevelBanned
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdSuspicious:
		return LevelSuspicious
	default:
		return LevelSafe
	}
}

// Evaluate runs the full synchronous pass: decay, deltas, clamp, level.
func Evaluate(existing float64, sig Signals) (float64, Level) {
	score := Clamp(ApplyDeltas(BaseScore(existing), sig))
	return score, LevelFor(score)
}

// TooFast reports whether a request at nowMillis follows the previous
// grant too closely. A zero lastRewardMillis means no prior grant.
func TooFast(lastRewardMillis, nowMillis int64) bool {
	if lastRewardMillis == 0 {
		return false
	}
	return nowMillis-lastRewardMillis < MinRewardIntervalMillis
}

// DeviceMismatch reports whether both fingerprints are present and differ.
func DeviceMismatch(stored, presented string) bool {
	return stored != "" && presented != "" && stored != presented
}

// CrowdedIP reports whether otherAccounts accounts beyond the caller share
// the request IP.
func CrowdedIP(otherAccounts int) bool {
	return otherAccounts > CrowdedIPAccounts
}

// SharedDevice reports whether the presented fingerprint has been seen from
// enough distinct other users to count as farm equipment.
func SharedDevice(otherOwners int) bool {
	return otherOwners >= SharedDeviceOwners
}
