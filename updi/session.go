// Package updi implements the programmer side of the UPDI single wire
// programming and debug interface used by recent AVR microcontrollers.
//
// The protocol is documented in the "Unified Program and Debug Interface"
// chapter of the tinyAVR 0/1/2, megaAVR 0 and AVR Dx datasheets.
package updi

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Session owns one transport and the link state of the target behind it.
// The public methods serialize on an internal mutex, so a Session can be
// shared. Nothing about the target is cached between calls except the
// revision reported by the last break.
type Session struct {
	t      Transport
	config Config

	workMutex sync.Mutex
	rev       byte
	closed    bool
}

func New(t Transport, opts ...Option) *Session {
	if t == nil {
		panic("updi: transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		t:      t,
		config: cfg,
	}
}

func (s *Session) log(format string, params ...interface{}) {
	if s.config.Log != nil {
		s.config.Log(" * "+format, params...)
	}
}

func (s *Session) ticks(n int) time.Duration {
	return time.Duration(n) * s.config.Tick
}

// wait busy-waits on the session clock.
func (s *Session) wait(d time.Duration) {
	deadline := s.config.Clock.Start(d)
	for !deadline.Expired() {
	}
	deadline.Stop()
}

func (s *Session) lock() error {
	s.workMutex.Lock()
	if s.closed {
		s.workMutex.Unlock()
		return errors.New("updi: session is closed")
	}
	return nil
}

// Revision returns the UPDI revision reported in STATUSA by the last
// successful SendBreak.
func (s *Session) Revision() byte {
	s.workMutex.Lock()
	defer s.workMutex.Unlock()

	return s.rev >> 4
}

func (s *Session) powerSet(enable bool) error {
	if s.config.PowerSwitch == nil {
		return nil
	}

	if enable {
		s.log("Enabling target power")
	} else {
		s.log("Disabling target power")
	}

	return s.config.PowerSwitch(enable)
}

// PowerCycle switches the target off and on again through the configured
// power switch. It is a no-op without one.
func (s *Session) PowerCycle() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.workMutex.Unlock()

	if s.config.PowerSwitch == nil {
		return nil
	}

	if err := s.powerSet(false); err != nil {
		return err
	}

	s.wait(s.config.PowerOffDelay)

	return s.powerSet(true)
}

// Close removes target power and closes the transport if it is closable.
func (s *Session) Close() error {
	s.workMutex.Lock()
	defer s.workMutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.powerSet(false)

	if c, ok := s.t.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}

	return err
}
