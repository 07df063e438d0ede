package updi

import "time"

// Direction of the shared data line.
type Direction int

const (
	DirTransmit Direction = iota
	DirReceive
)

func (d Direction) String() string {
	if d == DirReceive {
		return "rx"
	}
	return "tx"
}

// Transport is the byte level access to the single wire UART.
//
// SetDirection(DirReceive) must not return before every transmitted byte
// has left the wire. ReceiveByte is only called after DataReady reported
// true and must not block.
type Transport interface {
	Transmit(b byte) error
	TransmitBuffer(buf []byte) error

	DataReady() bool
	ReceiveByte() (byte, error)

	SetDirection(dir Direction) error
	SetBaud(rate int) error
}

// LineBreaker is implemented by transports that can hold the line low
// directly instead of relying on a slow baud rate.
type LineBreaker interface {
	DriveBreak() error
}

// Clock hands out deadlines. Implementations must use a monotonic source.
type Clock interface {
	Start(timeout time.Duration) Deadline
}

// Deadline is a started countdown.
type Deadline interface {
	Expired() bool
	Stop()
}

type systemClock struct{}

// SystemClock is the wall clock backed implementation of Clock.
var SystemClock Clock = systemClock{}

type systemDeadline struct {
	end time.Time
}

func (systemClock) Start(timeout time.Duration) Deadline {
	return &systemDeadline{end: time.Now().Add(timeout)}
}

func (d *systemDeadline) Expired() bool {
	return !time.Now().Before(d.end)
}

func (d *systemDeadline) Stop() {}
