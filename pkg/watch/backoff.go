package watch

import "time"

// Backoff is a geometric interval schedule clamped to [Floor, Cap].
type Backoff struct {
	Floor      time.Duration
	Cap        time.Duration
	Multiplier float64
	// Restart is the interval used after Reset, typically when new output
	// arrived and the next check should come soon.
	Restart time.Duration

	current time.Duration
}

// NewBackoff returns a schedule starting at floor.
func NewBackoff(floor, ceiling time.Duration, multiplier float64, restart time.Duration) *Backoff {
	b := &Backoff{Floor: floor, Cap: ceiling, Multiplier: multiplier, Restart: restart}
	b.current = b.clamp(floor)
	return b
}

// Current returns the interval Next would return.
func (b *Backoff) Current() time.Duration {
	return b.clamp(b.current)
}

// Next returns the current interval and grows the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.clamp(b.current)

	mult := b.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	b.current = b.clamp(time.Duration(float64(d) * mult))
	return d
}

// Reset moves the schedule back to the restart interval.
func (b *Backoff) Reset() {
	b.current = b.clamp(b.Restart)
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	if d < b.Floor {
		d = b.Floor
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}
