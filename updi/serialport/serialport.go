// Package serialport implements updi.Transport on a UART wired for single
// wire operation, either with TX and RX tied through a resistor (the echo of
// every byte is read back and checked) or with a half duplex buffer whose
// direction is driven by a GPIO.
package serialport

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/pkg/term"
	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
)

var ErrEcho = errors.New("serialport: echo mismatch")

const (
	echoTimeout = 100 * time.Millisecond

	// 8E2: start, 8 data, parity, 2 stop
	bitsPerChar = 12
)

// tty is the part of *term.Term the port uses.
type tty interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Available() (int, error)
	SetSpeed(baud int) error
	SendBreak() error
	Flush() error
	Close() error
}

type Port struct {
	tty    tty
	dirPin gpio.PinOut
	echo   bool
	baud   int

	// bytes sent whose echo (or transmission) has not been waited for
	pending []byte
	rx      []byte
}

type Option func(*Port)

// WithDirectionPin drives pin high while transmitting.
func WithDirectionPin(pin gpio.PinOut) Option {
	return func(p *Port) {
		p.dirPin = pin
	}
}

// WithEcho selects whether transmitted bytes are received back. It defaults
// to true, a buffered line without loopback must disable it.
func WithEcho(echo bool) Option {
	return func(p *Port) {
		p.echo = echo
	}
}

func updiFraming(attr *unix.Termios) {
	attr.Cflag |= unix.PARENB | unix.CSTOPB
	attr.Cflag &^= unix.PARODD
}

// setFraming switches device to even parity and two stop bits. Line settings
// belong to the device, so they persist after this descriptor is closed.
func setFraming(device string) error {
	f, err := os.OpenFile(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	var attr unix.Termios
	if err := termios.Tcgetattr(f.Fd(), &attr); err != nil {
		return err
	}
	updiFraming(&attr)
	return termios.Tcsetattr(f.Fd(), termios.TCSANOW, &attr)
}

// Open opens device at baud with 8E2 framing.
func Open(device string, baud int, opts ...Option) (*Port, error) {
	t, err := term.Open(device,
		term.RawMode,
		term.Speed(baud),
		term.ReadTimeout(echoTimeout))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	if err := setFraming(device); err != nil {
		t.Close()
		return nil, fmt.Errorf("configure %s: %w", device, err)
	}

	p := newPort(t, baud, opts...)
	if err := p.setLine(updi.DirReceive); err != nil {
		t.Close()
		return nil, err
	}

	return p, nil
}

func newPort(t tty, baud int, opts ...Option) *Port {
	p := &Port{
		tty:  t,
		echo: true,
		baud: baud,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Port) setLine(dir updi.Direction) error {
	if p.dirPin == nil {
		return nil
	}

	level := gpio.Low
	if dir == updi.DirTransmit {
		level = gpio.High
	}
	return p.dirPin.Out(level)
}

func (p *Port) Transmit(b byte) error {
	return p.TransmitBuffer([]byte{b})
}

func (p *Port) TransmitBuffer(buf []byte) error {
	if _, err := p.tty.Write(buf); err != nil {
		return err
	}

	p.pending = append(p.pending, buf...)
	return nil
}

// drain returns once every pending byte has left the UART.
func (p *Port) drain() error {
	if len(p.pending) == 0 {
		return nil
	}

	sent := p.pending
	p.pending = p.pending[:0]

	if !p.echo {
		time.Sleep(time.Duration(len(sent)*bitsPerChar) * time.Second / time.Duration(p.baud))
		return nil
	}

	echo := make([]byte, len(sent))
	for got := 0; got < len(echo); {
		n, err := p.tty.Read(echo[got:])
		if err != nil {
			return fmt.Errorf("read echo: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("read echo: %w", updi.ErrTimeout)
		}
		got += n
	}

	for i := range sent {
		if echo[i] != sent[i] {
			return fmt.Errorf("%w: sent 0x%02x, got 0x%02x", ErrEcho, sent[i], echo[i])
		}
	}

	return nil
}

func (p *Port) SetDirection(dir updi.Direction) error {
	if dir == updi.DirReceive {
		if err := p.drain(); err != nil {
			return err
		}
	}
	return p.setLine(dir)
}

func (p *Port) DataReady() bool {
	if len(p.rx) > 0 {
		return true
	}

	n, err := p.tty.Available()
	if err != nil || n <= 0 {
		return false
	}

	buf := make([]byte, n)
	n, err = p.tty.Read(buf)
	if err != nil {
		return false
	}
	p.rx = append(p.rx, buf[:n]...)

	return len(p.rx) > 0
}

func (p *Port) ReceiveByte() (byte, error) {
	if len(p.rx) == 0 {
		return 0, errors.New("serialport: no data")
	}

	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, nil
}

func (p *Port) SetBaud(rate int) error {
	if err := p.drain(); err != nil {
		return err
	}

	if err := p.tty.SetSpeed(rate); err != nil {
		return fmt.Errorf("set speed %d: %w", rate, err)
	}
	p.baud = rate
	return nil
}

// DriveBreak implements updi.LineBreaker using the UART break condition.
func (p *Port) DriveBreak() error {
	if err := p.drain(); err != nil {
		return err
	}
	if err := p.setLine(updi.DirTransmit); err != nil {
		return err
	}
	if err := p.tty.SendBreak(); err != nil {
		return fmt.Errorf("send break: %w", err)
	}

	// The break comes back as a framing error.
	p.rx = nil
	return p.tty.Flush()
}

func (p *Port) Close() error {
	p.setLine(updi.DirReceive)
	return p.tty.Close()
}
