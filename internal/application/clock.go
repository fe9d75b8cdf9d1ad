package application

import "time"

// Clock supaya timestamp laporan gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock reports UTC wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
