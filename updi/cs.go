package updi

func (s *Session) readCS(reg byte) (byte, error) {
	if err := s.instruction(opLDCS(reg)); err != nil {
		return 0, err
	}
	if err := s.direction(DirReceive); err != nil {
		return 0, err
	}
	return s.readByte(byteTimeout)
}

// writeCS stores a control/status register. The target never acknowledges
// these stores.
func (s *Session) writeCS(reg byte, value byte) error {
	return s.instruction(opSTCS(reg), value)
}

// isLocked treats a failed read as locked.
func (s *Session) isLocked() bool {
	status, err := s.readCS(RegASISysStatus)
	if err != nil {
		return true
	}
	return status&SysStatusLockStatus != 0
}

// inProgrammingMode treats a failed read as not in programming mode.
func (s *Session) inProgrammingMode() bool {
	status, err := s.readCS(RegASISysStatus)
	if err != nil {
		return false
	}
	return status&SysStatusNVMProg != 0
}

func (s *Session) resetDevice() error {
	if err := s.writeCS(RegASIResetReq, ResetRequestValue); err != nil {
		return err
	}
	return s.writeCS(RegASIResetReq, 0x00)
}

// ReadCS reads a control/status or ASI register.
func (s *Session) ReadCS(reg byte) (byte, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.workMutex.Unlock()

	return s.readCS(reg)
}

// IsLocked reports the lock status of the target. A communication failure
// is reported as locked.
func (s *Session) IsLocked() bool {
	if err := s.lock(); err != nil {
		return true
	}
	defer s.workMutex.Unlock()

	return s.isLocked()
}

// InProgrammingMode reports whether the NVM programming key is active. A
// communication failure is reported as false.
func (s *Session) InProgrammingMode() bool {
	if err := s.lock(); err != nil {
		return false
	}
	defer s.workMutex.Unlock()

	return s.inProgrammingMode()
}

// ResetDevice pulses the reset request register. Nothing is acknowledged,
// poll the status afterwards when confirmation is needed.
func (s *Session) ResetDevice() {
	if err := s.lock(); err != nil {
		return
	}
	defer s.workMutex.Unlock()

	if err := s.resetDevice(); err != nil {
		s.log("Reset failed: %v", err)
	}
}
