package main

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Clock also drives the logger timestamps.
var _ zapcore.Clock = (*Clock)(nil)

// Clocker provides the time used for uptime, maintenance mode,
// change events and cache expiry. Tests swap it with a fixed clock.
type Clocker interface {
	Now() time.Time
}

// Clock reads the system time in UTC for production and in the
// local timezone for development.
type Clock struct {
	location *time.Location
}

func NewClock(isProd bool) *Clock {
	if isProd {
		return &Clock{location: time.UTC}
	}
	return &Clock{location: time.Local}
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.location)
}

// NewTicker completes zapcore.Clock for zap.WithClock.
func (c *Clock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// minutesSince renders the whole minutes elapsed since t.
func minutesSince(ck Clocker, t time.Time) string {
	return fmt.Sprintf("%.0f mins", ck.Now().Sub(t).Minutes())
}
