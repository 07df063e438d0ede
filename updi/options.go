package updi

import "time"

type LogFunc func(format string, params ...interface{})

type PowerSwitchType func(enable bool) error

// Config holds the session settings.
type Config struct {
	Log   LogFunc
	Clock Clock

	// Tick is the unit of the poll budgets used while waiting for the
	// target to change state after a reset.
	Tick time.Duration

	BaudRate      int
	BreakBaudRate int

	// LineBreak uses the transport's LineBreaker, if any, for SendBreak.
	LineBreak bool

	PowerSwitch   PowerSwitchType
	PowerOffDelay time.Duration

	// SettleDelay is waited before reading the user row.
	SettleDelay time.Duration
}

func defaultConfig() Config {
	return Config{
		Clock:         SystemClock,
		Tick:          time.Millisecond,
		BaudRate:      115200,
		BreakBaudRate: 300,
		PowerOffDelay: 100 * time.Millisecond,
		SettleDelay:   time.Millisecond,
	}
}

type Option func(*Config)

func WithLogFunc(logFunc LogFunc) Option {
	return func(c *Config) {
		c.Log = logFunc
	}
}

// WithClock replaces the clock used for every deadline, which lets tests
// run against simulated time.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

func WithTick(tick time.Duration) Option {
	return func(c *Config) {
		if tick > 0 {
			c.Tick = tick
		}
	}
}

func WithBaudRate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.BaudRate = rate
		}
	}
}

func WithBreakBaudRate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.BreakBaudRate = rate
		}
	}
}

func WithLineBreak(enable bool) Option {
	return func(c *Config) {
		c.LineBreak = enable
	}
}

func WithPowerSwitch(powerFunc PowerSwitchType) Option {
	return func(c *Config) {
		c.PowerSwitch = powerFunc
	}
}

func WithPowerOffDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.PowerOffDelay = delay
		}
	}
}

func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.SettleDelay = delay
		}
	}
}
