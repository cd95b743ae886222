package session

import "time"

// CutoffHour is the market-session boundary. A token written before the
// cutoff and checked after it is assumed to have been reset by the broker.
const CutoffHour = 8

// Fresh decides whether a token written at mtime is still usable at now.
//
// The token is stale once a daily session boundary has been crossed since it
// was written: either the calendar date changed, or now is past the cutoff
// hour while the token was written before it. The hour check is one-sided,
// so a token written during the cutoff hour itself survives until midnight,
// and a check at or before mtime always passes.
func Fresh(now, mtime time.Time, exists bool) bool {
	if !exists {
		return false
	}
	if !now.After(mtime) {
		return true
	}
	if !sameDate(now, mtime) {
		return false
	}
	if now.Hour() > CutoffHour && mtime.Hour() < CutoffHour {
		return false
	}
	return true
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
