package updi

import "time"

func (s *Session) waitAck() error {
	if err := s.direction(DirReceive); err != nil {
		return err
	}

	response, err := s.readByte(byteTimeout)
	if err != nil {
		return err
	}
	if response != PhyAck {
		return ErrNACK
	}

	return nil
}

func (s *Session) getSIB() (SIB, error) {
	var sib SIB

	if err := s.instruction(opSIB32); err != nil {
		return sib, err
	}
	if err := s.direction(DirReceive); err != nil {
		return sib, err
	}

	buf := make([]byte, SIBLen)
	if err := s.readBuffer(buf, SIBLen*streamByteTimeout); err != nil {
		return sib, err
	}

	copy(sib[:], buf)
	return sib, nil
}

// GetSIB reads the 32 byte system information block.
func (s *Session) GetSIB() (SIB, error) {
	if err := s.lock(); err != nil {
		return SIB{}, err
	}
	defer s.workMutex.Unlock()

	return s.getSIB()
}

// storeDirect writes one byte with STS. Both the address and the data
// phase are acknowledged.
func (s *Session) storeDirect(address uint16, value byte) error {
	if err := s.instruction(opSTS16, byte(address), byte(address>>8)); err != nil {
		return err
	}
	if err := s.waitAck(); err != nil {
		return err
	}
	if err := s.direction(DirTransmit); err != nil {
		return err
	}
	if err := s.send(value); err != nil {
		return err
	}
	return s.waitAck()
}

func (s *Session) setPointer(address uint16) error {
	if err := s.instruction(opSTPtr16, byte(address), byte(address>>8)); err != nil {
		return err
	}
	return s.waitAck()
}

// setRepeat loads the repeat counter. n must already be validated to be in
// 1..MaxRepeatSize.
func (s *Session) setRepeat(n int) error {
	return s.instruction(opRepeat8, byte(n-1))
}

// storePtrInc sends data one byte at a time and stops at the first byte
// that is not acknowledged.
func (s *Session) storePtrInc(data []byte) error {
	if err := s.instruction(opSTPtrInc8); err != nil {
		return err
	}

	for i, b := range data {
		if err := s.direction(DirTransmit); err != nil {
			return err
		}
		if err := s.send(b); err != nil {
			return err
		}
		if err := s.waitAck(); err != nil {
			s.log("Store aborted at byte %d: %v", i, err)
			return err
		}
	}

	return nil
}

func (s *Session) loadPtrInc(n int) ([]byte, error) {
	if err := s.instruction(opLDPtrInc8); err != nil {
		return nil, err
	}
	if err := s.direction(DirReceive); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if err := s.readBuffer(buf, time.Duration(n)*streamByteTimeout); err != nil {
		return nil, err
	}

	return buf, nil
}

func validSize(n int) bool {
	return n >= 1 && n <= MaxRepeatSize
}

func (s *Session) write(address uint16, data []byte) error {
	if !validSize(len(data)) {
		return ErrInvalidSize
	}

	switch len(data) {
	case 1:
		return s.storeDirect(address, data[0])
	case 2:
		if err := s.storeDirect(address, data[0]); err != nil {
			return err
		}
		return s.storeDirect(address+1, data[1])
	}

	if err := s.setPointer(address); err != nil {
		return err
	}
	if err := s.setRepeat(len(data)); err != nil {
		return err
	}
	return s.storePtrInc(data)
}

func (s *Session) read(address uint16, n int) ([]byte, error) {
	if !validSize(n) {
		return nil, ErrInvalidSize
	}

	if err := s.setPointer(address); err != nil {
		return nil, err
	}
	if n > 1 {
		if err := s.setRepeat(n); err != nil {
			return nil, err
		}
	}
	return s.loadPtrInc(n)
}

// Write stores 1 to 256 bytes at address. A failed multi-byte write leaves
// the target memory in an unknown state.
func (s *Session) Write(address uint16, data []byte) error {
	if !validSize(len(data)) {
		return ErrInvalidSize
	}

	if err := s.lock(); err != nil {
		return err
	}
	defer s.workMutex.Unlock()

	return s.write(address, data)
}

// Read loads n bytes, 1 to 256, from address.
func (s *Session) Read(address uint16, n int) ([]byte, error) {
	if !validSize(n) {
		return nil, ErrInvalidSize
	}

	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.workMutex.Unlock()

	return s.read(address, n)
}
