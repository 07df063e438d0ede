package updi

import (
	"errors"
	"testing"
	"time"
)

// recordingTransport answers nothing and records every call.
type recordingTransport struct {
	calls []string
	sent  []byte
}

func (r *recordingTransport) Transmit(b byte) error {
	r.calls = append(r.calls, "Transmit")
	r.sent = append(r.sent, b)
	return nil
}

func (r *recordingTransport) TransmitBuffer(buf []byte) error {
	r.calls = append(r.calls, "TransmitBuffer")
	r.sent = append(r.sent, buf...)
	return nil
}

func (r *recordingTransport) DataReady() bool {
	r.calls = append(r.calls, "DataReady")
	return false
}

func (r *recordingTransport) ReceiveByte() (byte, error) {
	r.calls = append(r.calls, "ReceiveByte")
	return 0, errors.New("nothing to receive")
}

func (r *recordingTransport) SetDirection(dir Direction) error {
	r.calls = append(r.calls, "SetDirection("+dir.String()+")")
	return nil
}

func (r *recordingTransport) SetBaud(rate int) error {
	r.calls = append(r.calls, "SetBaud")
	return nil
}

// countClock expires every deadline after a fixed number of polls.
type countClock struct {
	polls int
}

type countDeadline struct {
	left int
}

func (c countClock) Start(time.Duration) Deadline {
	return &countDeadline{left: c.polls}
}

func (d *countDeadline) Expired() bool {
	d.left--
	return d.left < 0
}

func (d *countDeadline) Stop() {}

func TestInvalidSizeTouchesNothing(t *testing.T) {
	sizes := []int{0, MaxRepeatSize + 1, 1000}

	for _, n := range sizes {
		rt := &recordingTransport{}
		s := New(rt)

		if err := s.Write(0x1000, make([]byte, n)); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Write(%d bytes) = %v, want ErrInvalidSize", n, err)
		}
		if _, err := s.Read(0x1000, n); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Read(%d) = %v, want ErrInvalidSize", n, err)
		}
		if len(rt.calls) != 0 {
			t.Errorf("size %d: transport was called %v", n, rt.calls)
		}
	}
}

func TestReadCSFraming(t *testing.T) {
	rt := &recordingTransport{}
	s := New(rt, WithClock(countClock{polls: 3}))

	if _, err := s.ReadCS(RegASISysStatus); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReadCS on a silent line = %v, want ErrTimeout", err)
	}

	want := []string{"SetDirection(tx)", "Transmit", "TransmitBuffer", "SetDirection(rx)", "DataReady", "DataReady", "DataReady"}
	if len(rt.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rt.calls, want)
	}
	for i := range want {
		if rt.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", rt.calls, want)
		}
	}

	if len(rt.sent) != 2 || rt.sent[0] != PhySync || rt.sent[1] != 0x8B {
		t.Errorf("sent % x, want 55 8b", rt.sent)
	}
}

func TestWriteFraming(t *testing.T) {
	rt := &recordingTransport{}
	s := New(rt, WithClock(countClock{polls: 1}))

	// The first ack never arrives, only the address phase is sent.
	if err := s.Write(0x1234, []byte{0xAA}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Write = %v, want ErrTimeout", err)
	}
	if want := []byte{PhySync, 0x44, 0x34, 0x12}; string(rt.sent) != string(want) {
		t.Errorf("sent % x, want % x", rt.sent, want)
	}

	rt.sent = nil
	if err := s.Write(0x1234, []byte{1, 2, 3}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Write = %v, want ErrTimeout", err)
	}
	if want := []byte{PhySync, 0x69, 0x34, 0x12}; string(rt.sent) != string(want) {
		t.Errorf("sent % x, want % x", rt.sent, want)
	}
}
