package ports

import "time"

type Policy struct {
	PollInterval  time.Duration // sleep between cycles; 0 runs cycles back to back
	RetryPause    time.Duration // sleep after a failed snapshot fetch
	ReleaseMemory bool          // return per-cycle garbage to the OS eagerly
}

const (
	DefaultPollInterval = time.Second
	DefaultRetryPause   = time.Second
)

// WithDefaults fills a non-positive retry pause and clamps a negative poll
// interval to zero.
func (p Policy) WithDefaults() Policy {
	if p.PollInterval < 0 {
		p.PollInterval = 0
	}
	if p.RetryPause <= 0 {
		p.RetryPause = DefaultRetryPause
	}
	return p
}
