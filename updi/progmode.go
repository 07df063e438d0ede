package updi

const (
	unlockTicks   = 50
	progModeTicks = 10
	userRowTicks  = 50
)

func (s *Session) enterProgrammingMode() error {
	if s.inProgrammingMode() {
		return nil
	}

	if err := s.unlock(KeyNVMProg, KeyStatusNVMProg); err != nil {
		return err
	}

	if err := s.resetDevice(); err != nil {
		return err
	}
	if err := s.waitUnlocked(s.ticks(progModeTicks)); err != nil {
		return err
	}

	if !s.inProgrammingMode() {
		s.log("Key accepted but NVMPROG is not set")
		return ErrModeChangeFailed
	}

	s.log("Entered programming mode")
	return nil
}

// EnterProgrammingMode activates the NVM programming key. It returns nil
// immediately if the target is already in programming mode.
func (s *Session) EnterProgrammingMode() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.workMutex.Unlock()

	return s.enterProgrammingMode()
}

// LeaveProgrammingMode resets the target and disables UPDI until the next
// break.
func (s *Session) LeaveProgrammingMode() {
	if err := s.lock(); err != nil {
		return
	}
	defer s.workMutex.Unlock()

	if err := s.resetDevice(); err != nil {
		s.log("Reset failed: %v", err)
	}
	if err := s.writeCS(RegCtrlB, CtrlBUPDIDIS|CtrlBCCDETDIS); err != nil {
		s.log("Disabling UPDI failed: %v", err)
	}
}

// EraseChip erases flash and EEPROM and clears the lock bits.
func (s *Session) EraseChip() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.workMutex.Unlock()

	if err := s.unlock(KeyChipErase, KeyStatusChipErase); err != nil {
		return err
	}

	if err := s.resetDevice(); err != nil {
		return err
	}

	return s.waitUnlocked(s.ticks(unlockTicks))
}

// ReadUserRow enters programming mode if needed and reads the user row.
func (s *Session) ReadUserRow() ([UserRowLen]byte, error) {
	var row [UserRowLen]byte

	if err := s.lock(); err != nil {
		return row, err
	}
	defer s.workMutex.Unlock()

	if err := s.enterProgrammingMode(); err != nil {
		return row, err
	}

	s.wait(s.config.SettleDelay)

	data, err := s.read(UserRowAddr, UserRowLen)
	if err != nil {
		return row, err
	}

	copy(row[:], data)
	return row, nil
}

// WriteUserRow programs the user row through the user row write key. This
// works on locked targets. If a step fails the row content is undefined.
func (s *Session) WriteUserRow(data [UserRowLen]byte) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.workMutex.Unlock()

	if err := s.unlock(KeyUserRow, KeyStatusUROWWrite); err != nil {
		return err
	}

	if err := s.resetDevice(); err != nil {
		return err
	}
	if err := s.waitUserRowProg(s.ticks(userRowTicks), true); err != nil {
		return err
	}

	if err := s.write(UserRowAddr, data[:]); err != nil {
		return err
	}

	if err := s.writeCS(RegASISysCtrlA, SysCtrlAUROWFinal|CtrlBCCDETDIS); err != nil {
		return err
	}
	if err := s.waitUserRowProg(s.ticks(userRowTicks), false); err != nil {
		return err
	}

	if err := s.writeCS(RegASIKeyStatus, KeyStatusUROWWrite|CtrlBCCDETDIS); err != nil {
		return err
	}
	if err := s.resetDevice(); err != nil {
		return err
	}

	s.log("User row written")
	return nil
}
