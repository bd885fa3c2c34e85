package client

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. Tests substitute a manual implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler returns a Scheduler backed by time.AfterFunc.
func RealScheduler() Scheduler {
	return realScheduler{}
}

const (
	refreshLeeway = 120 * time.Second

	// minRefreshDelay bounds the refresh rate when the server hands out tokens
	// that are already expired or nearly so.
	minRefreshDelay = 5 * time.Second
)

// RefreshDelay returns how long to wait before refreshing a token that expires in
// expiresIn: min(expiresIn-120s, expiresIn*0.9), but never earlier than half the
// token's lifetime and never below 5s. Without the half-life floor a token of two
// minutes or less would be refreshed immediately, and so would its successor.
// For a one hour token the delay is 54 minutes; for a one minute token, 30 seconds.
func RefreshDelay(expiresIn time.Duration) time.Duration {
	d := min(expiresIn-refreshLeeway, expiresIn*9/10)
	d = max(d, expiresIn/2)
	return max(d, minRefreshDelay)
}
