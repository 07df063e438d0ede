package updi

import "time"

// Key is an activation key in wire order, least significant byte first.
type Key [KeyLen]byte

func reversedKey(s string) Key {
	var k Key
	for i := range k {
		k[i] = s[KeyLen-1-i]
	}
	return k
}

var (
	KeyNVMProg   = reversedKey("NVMProg ")
	KeyChipErase = reversedKey("NVMErase")
	KeyUserRow   = reversedKey("NVMUs&te")
)

func (k Key) String() string {
	var b [KeyLen]byte
	for i := range k {
		b[i] = k[KeyLen-1-i]
	}
	return string(b[:])
}

// sendKey transmits a key. Acceptance is only visible in ASI_KEY_STATUS.
func (s *Session) sendKey(key Key) error {
	if err := s.instruction(opKey8, key[:]...); err != nil {
		return err
	}
	return s.direction(DirReceive)
}

// unlock sends key and checks statusBit in ASI_KEY_STATUS once.
func (s *Session) unlock(key Key, statusBit byte) error {
	s.log("Sending key %q", key.String())

	if err := s.sendKey(key); err != nil {
		return err
	}

	keyStatus, err := s.readCS(RegASIKeyStatus)
	if err != nil {
		return err
	}

	if keyStatus&statusBit == 0 {
		s.log("Key %q not accepted, KEY_STATUS 0x%02x", key.String(), keyStatus)
		return ErrModeChangeFailed
	}

	return nil
}

func (s *Session) waitUnlocked(timeout time.Duration) error {
	deadline := s.config.Clock.Start(timeout)
	defer deadline.Stop()

	for !deadline.Expired() {
		if !s.isLocked() {
			return nil
		}
	}

	return ErrTimeout
}

// waitUserRowProg polls SYS_STATUS until UROWPROG equals high. A failed
// status read ends the wait with that error.
func (s *Session) waitUserRowProg(timeout time.Duration, high bool) error {
	deadline := s.config.Clock.Start(timeout)
	defer deadline.Stop()

	for !deadline.Expired() {
		status, err := s.readCS(RegASISysStatus)
		if err != nil {
			return err
		}
		if (status&SysStatusUROWProg != 0) == high {
			return nil
		}
	}

	return ErrTimeout
}
