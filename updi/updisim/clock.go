package updisim

import (
	"sync"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
)

// Clock is simulated time. Every poll of a deadline advances it by Step,
// so busy-wait loops finish after a bounded number of iterations.
type Clock struct {
	mutex sync.Mutex
	now   time.Duration
	step  time.Duration
}

func NewClock(step time.Duration) *Clock {
	if step <= 0 {
		step = 10 * time.Microsecond
	}
	return &Clock{step: step}
}

func (c *Clock) Now() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.now
}

func (c *Clock) Step() time.Duration {
	return c.step
}

func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now += d
}

func (c *Clock) Start(timeout time.Duration) updi.Deadline {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return &deadline{clock: c, end: c.now + timeout}
}

type deadline struct {
	clock *Clock
	end   time.Duration
}

func (d *deadline) Expired() bool {
	d.clock.mutex.Lock()
	defer d.clock.mutex.Unlock()

	d.clock.now += d.clock.step
	return d.clock.now >= d.end
}

func (d *deadline) Stop() {}
