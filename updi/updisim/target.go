// Package updisim simulates the target side of a UPDI link. A Target
// implements updi.Transport, decodes every instruction the programmer sends
// and answers the way an AVR with a UPDI interface does.
package updisim

import (
	"bytes"
	"sync"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
)

const (
	eepromStart = 0x1400
	eepromEnd   = 0x1500
	flashStart  = 0x8000

	// Bytes sent below this rate are break characters.
	breakBaudLimit = 1000
)

type decodeState int

const (
	stateIdle decodeState = iota
	stateOpcode
	stateOperands
	stateSTSData
	stateSTData
)

// Target is a simulated UPDI device. The exported fields configure its
// behaviour and may be changed between operations.
type Target struct {
	SIB     updi.SIB
	StatusA byte
	Locked  bool

	// RejectKeys ignores every key, the key status never changes.
	RejectKeys bool
	// NeverUnlock accepts the chip erase key but stays locked after reset.
	NeverUnlock bool
	// UnlockDelay is the simulated time between the reset that applies a
	// chip erase and the lock bit clearing.
	UnlockDelay time.Duration
	// UserRowNeverReady keeps UROWPROG low after the user row key.
	UserRowNeverReady bool
	// UserRowStuck keeps UROWPROG high after finalizing.
	UserRowStuck bool
	// Silent never answers.
	Silent bool
	// WithholdAckAt drops the acknowledgment of the n-th (1-based) byte
	// received by ST *(ptr++). NackAt answers it with a wrong value.
	WithholdAckAt int
	NackAt        int
	// StreamLimit stops LD *(ptr++) and SIB answers after this many bytes.
	StreamLimit int
	// PtrNack answers ST ptr with a wrong acknowledgment.
	PtrNack bool

	mutex sync.Mutex
	clock *Clock

	mem        [0x10000]byte
	userRowBuf [updi.UserRowLen]byte

	dir     updi.Direction
	baud    int
	enabled bool
	rx      []byte

	state    decodeState
	instr    updi.Instruction
	opcode   byte
	operands []byte
	need     int
	address  uint16

	ptr    uint16
	repeat int
	stLeft int

	ctrlA, ctrlB byte
	keyStatus    byte
	sysCtrlA     byte
	nvmProg      bool
	userRowProg  bool
	inReset      bool

	unlockPending bool
	unlockAt      time.Duration

	calls       int
	transmitted int
	storeBytes  int
	collisions  int
	breaks      int
	csReads     map[byte]int
	keys        []updi.Key
}

// New creates a target with blank memory. clock may be nil when no timed
// behaviour is used.
func New(clock *Clock) *Target {
	t := &Target{
		SIB:     defaultSIB(),
		StatusA: 0x30,
		clock:   clock,
		csReads: make(map[byte]int),
		baud:    115200,
	}

	for i := flashStart; i < len(t.mem); i++ {
		t.mem[i] = 0xFF
	}
	for i := eepromStart; i < eepromEnd; i++ {
		t.mem[i] = 0xFF
	}
	for i := 0; i < updi.UserRowLen; i++ {
		t.mem[updi.UserRowAddr+i] = 0xFF
	}

	return t
}

func defaultSIB() updi.SIB {
	s := updi.SIBFromString("tinyAVR P:0D:1-3M2 (01.59B20.0)")
	s[updi.SIBLen-1] = 0
	return s
}

func (t *Target) now() time.Duration {
	if t.clock == nil {
		return 0
	}
	return t.clock.Now()
}

// update applies state changes that are due at the current simulated time.
func (t *Target) update() {
	if t.unlockPending && t.now() >= t.unlockAt {
		t.unlockPending = false
		t.Locked = false
	}
}

func (t *Target) Transmit(b byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	t.feed(b)
	return nil
}

func (t *Target) TransmitBuffer(buf []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	for _, b := range buf {
		t.feed(b)
	}
	return nil
}

func (t *Target) DataReady() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	return !t.Silent && t.dir == updi.DirReceive && len(t.rx) > 0
}

func (t *Target) ReceiveByte() (byte, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	if len(t.rx) == 0 {
		return 0, nil
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

func (t *Target) SetDirection(dir updi.Direction) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	t.dir = dir
	return nil
}

func (t *Target) SetBaud(rate int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	t.baud = rate
	return nil
}

// DriveBreak implements updi.LineBreaker.
func (t *Target) DriveBreak() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.calls++
	t.doBreak()
	return nil
}

func (t *Target) doBreak() {
	t.breaks++
	t.enabled = true
	t.state = stateIdle
	t.rx = nil
	t.repeat = 0
}

func (t *Target) respond(data ...byte) {
	if t.Silent {
		return
	}
	t.rx = append(t.rx, data...)
}

func (t *Target) feed(b byte) {
	t.transmitted++

	if t.dir != updi.DirTransmit {
		t.collisions++
	}
	if len(t.rx) > 0 {
		// The programmer talks over an unread response.
		t.collisions++
		t.rx = nil
	}

	if t.baud < breakBaudLimit {
		if b == 0x00 {
			t.doBreak()
		}
		return
	}

	if !t.enabled {
		return
	}

	t.update()

	switch t.state {
	case stateIdle:
		if b == updi.PhySync {
			t.state = stateOpcode
		}

	case stateOpcode:
		t.opcode = b
		t.instr = updi.Decode(b)
		t.operands = t.operands[:0]
		t.need = t.operandLen()
		if t.need == 0 {
			t.state = stateIdle
			t.execute()
		} else {
			t.state = stateOperands
		}

	case stateOperands:
		t.operands = append(t.operands, b)
		if len(t.operands) == t.need {
			t.state = stateIdle
			t.execute()
		}

	case stateSTSData:
		t.operands = append(t.operands, b)
		if len(t.operands) == t.need {
			t.state = stateIdle
			for i, v := range t.operands {
				t.store(t.address+uint16(i), v)
			}
			t.respond(updi.PhyAck)
		}

	case stateSTData:
		t.storeBytes++
		if t.WithholdAckAt != 0 && t.storeBytes == t.WithholdAckAt {
			t.state = stateIdle
			t.repeat = 0
			return
		}

		t.store(t.ptr, b)
		if t.instr.Mode == updi.PtrInc {
			t.ptr++
		}

		if t.NackAt != 0 && t.storeBytes == t.NackAt {
			t.respond(0x00)
		} else {
			t.respond(updi.PhyAck)
		}

		t.stLeft--
		if t.stLeft == 0 {
			t.state = stateIdle
			t.repeat = 0
		}
	}
}

func widthLen(w updi.Width) int {
	return int(w) + 1
}

func (t *Target) operandLen() int {
	switch t.instr.Class {
	case updi.ClassLDS, updi.ClassSTS:
		return widthLen(t.instr.Addr)
	case updi.ClassST:
		if t.instr.Mode == updi.PtrAddress {
			return widthLen(t.instr.Data)
		}
	case updi.ClassSTCS:
		return 1
	case updi.ClassRepeat:
		return widthLen(t.instr.Data)
	case updi.ClassKey:
		if !t.instr.SIB {
			return 8 << t.instr.Size
		}
	}
	return 0
}

func (t *Target) accessible() bool {
	return !t.Locked || t.userRowProg
}

func (t *Target) execute() {
	switch t.instr.Class {
	case updi.ClassLDS:
		if !t.accessible() {
			return
		}
		addr := t.operandAddress()
		for i := 0; i < widthLen(t.instr.Data); i++ {
			t.respond(t.mem[addr+uint16(i)])
		}

	case updi.ClassSTS:
		if !t.accessible() {
			return
		}
		t.address = t.operandAddress()
		t.operands = t.operands[:0]
		t.need = widthLen(t.instr.Data)
		t.state = stateSTSData
		t.respond(updi.PhyAck)

	case updi.ClassLD:
		if !t.accessible() {
			t.repeat = 0
			return
		}
		if t.instr.Mode == updi.PtrAddress {
			t.respond(byte(t.ptr), byte(t.ptr>>8))
			return
		}
		for i := 0; i <= t.repeat; i++ {
			if t.StreamLimit != 0 && i >= t.StreamLimit {
				break
			}
			t.respond(t.mem[t.ptr])
			if t.instr.Mode == updi.PtrInc {
				t.ptr++
			}
		}
		t.repeat = 0

	case updi.ClassST:
		if !t.accessible() {
			t.repeat = 0
			return
		}
		if t.instr.Mode == updi.PtrAddress {
			t.ptr = t.operandAddress()
			if t.PtrNack {
				t.respond(0x00)
			} else {
				t.respond(updi.PhyAck)
			}
			return
		}
		t.stLeft = t.repeat + 1
		t.state = stateSTData

	case updi.ClassLDCS:
		t.csReads[t.instr.Reg]++
		t.respond(t.readCS(t.instr.Reg))

	case updi.ClassSTCS:
		t.writeCS(t.instr.Reg, t.operands[0])

	case updi.ClassRepeat:
		t.repeat = int(t.operands[0])

	case updi.ClassKey:
		if t.instr.SIB {
			n := 8 << t.instr.Size
			if t.StreamLimit != 0 && n > t.StreamLimit {
				n = t.StreamLimit
			}
			t.respond(t.SIB[:n]...)
			return
		}
		t.applyKey(t.operands)
	}
}

// operandAddress decodes the little endian address operand. 24 bit
// addresses wrap into the 64 KiB data space.
func (t *Target) operandAddress() uint16 {
	var addr uint32
	for i := len(t.operands) - 1; i >= 0; i-- {
		addr = addr<<8 | uint32(t.operands[i])
	}
	return uint16(addr)
}

func isUserRow(addr uint16) bool {
	return addr >= updi.UserRowAddr && addr < updi.UserRowAddr+updi.UserRowLen
}

func (t *Target) store(addr uint16, v byte) {
	if isUserRow(addr) {
		if t.userRowProg {
			t.userRowBuf[addr-updi.UserRowAddr] = v
		}
		return
	}
	t.mem[addr] = v
}

func (t *Target) readCS(reg byte) byte {
	switch reg {
	case updi.RegStatusA:
		return t.StatusA
	case updi.RegCtrlA:
		return t.ctrlA
	case updi.RegCtrlB:
		return t.ctrlB
	case updi.RegASIKeyStatus:
		return t.keyStatus
	case updi.RegASISysCtrlA:
		return t.sysCtrlA
	case updi.RegASISysStatus:
		var status byte
		if t.Locked {
			status |= updi.SysStatusLockStatus
		}
		if t.nvmProg {
			status |= updi.SysStatusNVMProg
		}
		if t.userRowProg {
			status |= updi.SysStatusUROWProg
		}
		if t.inReset {
			status |= updi.SysStatusRSTSYS
		}
		return status
	}
	return 0
}

func (t *Target) writeCS(reg byte, v byte) {
	switch reg {
	case updi.RegCtrlA:
		t.ctrlA = v
	case updi.RegCtrlB:
		t.ctrlB = v
		if v&updi.CtrlBUPDIDIS != 0 {
			t.disable()
		}
	case updi.RegASIResetReq:
		if v == updi.ResetRequestValue {
			t.inReset = true
		} else if v == 0 && t.inReset {
			t.inReset = false
			t.releaseReset()
		}
	case updi.RegASISysCtrlA:
		t.sysCtrlA = v &^ updi.SysCtrlAUROWFinal
		if v&updi.SysCtrlAUROWFinal != 0 && t.userRowProg {
			copy(t.mem[updi.UserRowAddr:], t.userRowBuf[:])
			if !t.UserRowStuck {
				t.userRowProg = false
			}
		}
	case updi.RegASIKeyStatus:
		t.keyStatus &^= v & (updi.KeyStatusChipErase | updi.KeyStatusNVMProg | updi.KeyStatusUROWWrite)
	}
}

func (t *Target) disable() {
	t.enabled = false
	t.keyStatus = 0
	t.nvmProg = false
	t.userRowProg = false
	t.sysCtrlA = 0
	t.rx = nil
}

func (t *Target) applyKey(key []byte) {
	var k updi.Key
	copy(k[:], key)
	t.keys = append(t.keys, k)

	if t.RejectKeys {
		return
	}

	switch {
	case bytes.Equal(key, updi.KeyNVMProg[:]):
		t.keyStatus |= updi.KeyStatusNVMProg
	case bytes.Equal(key, updi.KeyChipErase[:]):
		t.keyStatus |= updi.KeyStatusChipErase
	case bytes.Equal(key, updi.KeyUserRow[:]):
		t.keyStatus |= updi.KeyStatusUROWWrite
	}
}

func (t *Target) releaseReset() {
	if t.keyStatus&updi.KeyStatusChipErase != 0 {
		t.keyStatus &^= updi.KeyStatusChipErase
		for i := flashStart; i < len(t.mem); i++ {
			t.mem[i] = 0xFF
		}
		for i := eepromStart; i < eepromEnd; i++ {
			t.mem[i] = 0xFF
		}

		if !t.NeverUnlock && t.Locked {
			t.unlockPending = true
			t.unlockAt = t.now() + t.UnlockDelay
		}
	}

	if t.keyStatus&updi.KeyStatusUROWWrite != 0 && !t.UserRowNeverReady {
		t.userRowProg = true
		t.userRowBuf = [updi.UserRowLen]byte{}
	}

	t.update()

	if t.keyStatus&updi.KeyStatusNVMProg != 0 && !t.Locked {
		t.nvmProg = true
	}
}

// Calls counts every transport method invocation.
func (t *Target) Calls() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.calls
}

// Transmitted counts bytes sent by the programmer, breaks included.
func (t *Target) Transmitted() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.transmitted
}

// StoreBytes counts data bytes received by ST *(ptr++).
func (t *Target) StoreBytes() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.storeBytes
}

// Collisions counts bytes sent while the line was turned around or while a
// response was still unread.
func (t *Target) Collisions() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.collisions
}

// Breaks counts detected break characters.
func (t *Target) Breaks() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.breaks
}

// CSReads counts LDCS instructions for reg.
func (t *Target) CSReads(reg byte) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.csReads[reg]
}

// Keys returns every key received, in order.
func (t *Target) Keys() []updi.Key {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return append([]updi.Key(nil), t.keys...)
}

// Enabled reports whether UPDI is active, which requires a break.
func (t *Target) Enabled() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.enabled
}

func (t *Target) InProgrammingMode() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.nvmProg
}

// UserRow returns the committed user row.
func (t *Target) UserRow() [updi.UserRowLen]byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var row [updi.UserRowLen]byte
	copy(row[:], t.mem[updi.UserRowAddr:])
	return row
}

func (t *Target) Peek(address uint16, n int) []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make([]byte, n)
	for i := range out {
		out[i] = t.mem[address+uint16(i)]
	}
	return out
}

func (t *Target) Poke(address uint16, data []byte) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for i, b := range data {
		t.mem[address+uint16(i)] = b
	}
}
