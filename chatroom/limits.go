package chatroom

import "time"

const (
	defaultChatRateWindow = 10 * time.Second
	defaultChatRateMax    = 40
)

// chatLimiter is a sliding window over recent frame times. It belongs to a
// single read loop and is not safe for concurrent use.
type chatLimiter struct {
	window time.Duration
	max    int
	events []time.Time
}

func newChatLimiter(max int, window time.Duration) *chatLimiter {
	if max <= 0 {
		max = defaultChatRateMax
	}
	if window <= 0 {
		window = defaultChatRateWindow
	}
	return &chatLimiter{window: window, max: max}
}

func (l *chatLimiter) allow(now time.Time) bool {
	windowStart := now.Add(-l.window)
	trimmed := l.events[:0]
	for _, ts := range l.events {
		if ts.After(windowStart) {
			trimmed = append(trimmed, ts)
		}
	}
	l.events = trimmed
	if len(l.events) >= l.max {
		return false
	}
	l.events = append(l.events, now)
	return true
}
