package risk

// The retrospective pass scores a user from their accumulated behavior log
// instead of the live request. It is a separate heuristic from Evaluate:
// the score it produces replaces the stored one, but a ban set by either
// pass is never cleared by the other.

const (
	// WeightClickAnomaly applies when an event's click count exceeds
	// twice the user's prior average.
	WeightClickAnomaly = 50

	// WeightShortSession applies to sessions too short to be genuine.
	WeightShortSession = 35
	// WeightLongSession applies to implausibly long sessions.
	WeightLongSession = 35

	MinSessionMillis = 60000
	MaxSessionMillis = 8 * 60 * 60 * 1000

	// HistoryBanThreshold is the recomputed score at which the
	// retrospective pass bans the user outright.
	HistoryBanThreshold = 80
)

// HistorySignals are the anomaly flags derived from a user's behavior log.
type HistorySignals struct {
	ClickAnomaly bool
	ShortSession bool
	LongSession  bool
}

// DeriveHistorySignals flags the latest event against the prior average
// click count. avgClicks is the mean of all events before the latest one;
// zero average means no usable history, so no click anomaly.
func DeriveHistorySignals(rewardClicks float64, avgClicks float64, sessionMillis int64) HistorySignals {
	return HistorySignals{
		ClickAnomaly: avgClicks > 0 && rewardClicks > 2*avgClicks,
		ShortSession: sessionMillis > 0 && sessionMillis < MinSessionMillis,
		LongSession:  sessionMillis > MaxSessionMillis,
	}
}

// ScoreHistory computes a fresh clamped score from history signals and
// reports whether it crosses the retrospective ban threshold.
func ScoreHistory(sig HistorySignals) (score float64, ban bool) {
	if sig.ClickAnomaly {
		score += WeightClickAnomaly
	}
	if sig.ShortSession {
		score += WeightShortSession
	}
	if sig.LongSession {
		score += WeightLongSession
	}
	score = Clamp(score)
	return score, score >= HistoryBanThreshold
}
