package updi

import (
	"fmt"
	"time"
)

const (
	byteTimeout       = 2 * time.Millisecond
	streamByteTimeout = 1500 * time.Microsecond
)

func (s *Session) send(buf ...byte) error {
	if err := s.t.TransmitBuffer(buf); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

func (s *Session) direction(dir Direction) error {
	if err := s.t.SetDirection(dir); err != nil {
		return fmt.Errorf("set direction %s: %w", dir, err)
	}
	return nil
}

// sendSync takes the line and sends the sync character that starts every
// instruction.
func (s *Session) sendSync() error {
	if err := s.direction(DirTransmit); err != nil {
		return err
	}
	if err := s.t.Transmit(PhySync); err != nil {
		return fmt.Errorf("transmit sync: %w", err)
	}
	return nil
}

// instruction sends sync, the opcode and its operand bytes.
func (s *Session) instruction(op byte, operands ...byte) error {
	if err := s.sendSync(); err != nil {
		return err
	}
	return s.send(append([]byte{op}, operands...)...)
}

// readByte waits for one byte. The line must already be in receive mode.
func (s *Session) readByte(timeout time.Duration) (byte, error) {
	deadline := s.config.Clock.Start(timeout)
	defer deadline.Stop()

	for !deadline.Expired() {
		if s.t.DataReady() {
			b, err := s.t.ReceiveByte()
			if err != nil {
				return 0, fmt.Errorf("receive: %w", err)
			}
			return b, nil
		}
	}

	return 0, ErrTimeout
}

// readBuffer fills buf within one cumulative deadline. A short read is a
// timeout and the partial data is dropped.
func (s *Session) readBuffer(buf []byte, timeout time.Duration) error {
	deadline := s.config.Clock.Start(timeout)
	defer deadline.Stop()

	for i := range buf {
		for !s.t.DataReady() {
			if deadline.Expired() {
				return ErrTimeout
			}
		}

		b, err := s.t.ReceiveByte()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		buf[i] = b
	}

	return nil
}

func (s *Session) sendBreak() (byte, error) {
	s.log("Sending break")

	if lb, ok := s.t.(LineBreaker); ok && s.config.LineBreak {
		if err := lb.DriveBreak(); err != nil {
			return 0, fmt.Errorf("drive break: %w", err)
		}
	} else {
		// Two zero characters at 300 baud keep the line low for well over
		// the 24.6 ms the target needs to detect a break.
		if err := s.t.SetBaud(s.config.BreakBaudRate); err != nil {
			return 0, fmt.Errorf("set break baud: %w", err)
		}
		if err := s.direction(DirTransmit); err != nil {
			return 0, err
		}
		if err := s.send(0x00, 0x00); err != nil {
			return 0, err
		}
		if err := s.t.SetBaud(s.config.BaudRate); err != nil {
			return 0, fmt.Errorf("set baud: %w", err)
		}
	}

	if err := s.writeCS(RegCtrlB, CtrlBCCDETDIS); err != nil {
		return 0, err
	}
	if err := s.writeCS(RegCtrlA, CtrlAIBDLY); err != nil {
		return 0, err
	}

	status, err := s.readCS(RegStatusA)
	if err != nil {
		return 0, err
	}
	s.rev = status

	s.log("STATUSA 0x%02x (revision %d)", status, status>>4)
	return status, nil
}

// SendBreak resynchronizes the target, disables collision detection,
// enables the inter-byte delay and returns STATUSA. A non-zero status means
// the link is alive.
func (s *Session) SendBreak() (byte, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.workMutex.Unlock()

	return s.sendBreak()
}

// CheckLink reports whether STATUSA can be read and is non-zero.
func (s *Session) CheckLink() bool {
	if err := s.lock(); err != nil {
		return false
	}
	defer s.workMutex.Unlock()

	status, err := s.readCS(RegStatusA)
	return err == nil && status != 0
}
