package schedule

import (
	"time"
)

const (
	DefaultRetryInterval = 10 * time.Second
	DefaultMaxRetries    = 5
	DefaultMargin        = 5 * time.Second
	DefaultPollTimeout   = 15 * time.Second

	// NoRetries as MaxRetries drops the duration on the first unchanged poll.
	NoRetries = -1
)

// Config tunes the Tracker and finish-time math; zero values fall back to the
// defaults above.
type Config struct {
	RetryInterval time.Duration
	MaxRetries    int
	Margin        time.Duration
	PollTimeout   time.Duration
	Location      *time.Location
}

// WithDefaults fills zero fields with the package defaults.
func (c Config) WithDefaults() Config {
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Margin <= 0 {
		c.Margin = DefaultMargin
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.Location == nil {
		loc, err := time.LoadLocation("Asia/Seoul")
		if err != nil {
			loc = time.FixedZone("KST", 9*60*60)
		}
		c.Location = loc
	}
	return c
}
