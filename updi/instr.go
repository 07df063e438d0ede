package updi

import "fmt"

// Class is the instruction class held in the upper three bits of an opcode.
type Class byte

const (
	ClassLDS    Class = 0x00
	ClassLD     Class = 0x20
	ClassSTS    Class = 0x40
	ClassST     Class = 0x60
	ClassLDCS   Class = 0x80
	ClassRepeat Class = 0xA0
	ClassSTCS   Class = 0xC0
	ClassKey    Class = 0xE0
)

// PtrMode selects how LD/ST use the pointer register.
type PtrMode byte

const (
	PtrDeref   PtrMode = 0x00 // *(ptr)
	PtrInc     PtrMode = 0x04 // *(ptr++)
	PtrAddress PtrMode = 0x08 // ptr
)

// Width is an operand size. The same encoding is used for the address
// field (shifted by two) and the data field of LDS/STS.
type Width byte

const (
	Width8  Width = 0x00
	Width16 Width = 0x01
	Width24 Width = 0x02
)

// KeySize selects the length of a KEY instruction payload.
type KeySize byte

const (
	KeySize8  KeySize = 0x00
	KeySize16 KeySize = 0x01
	KeySize32 KeySize = 0x02
)

const (
	keyFlagSIB = 0x04
)

// Wire constants.
const (
	PhySync = 0x55
	PhyAck  = 0x40

	ResetRequestValue = 0x59

	MaxRepeatSize = 0xFF + 1

	KeyLen      = 8
	SIBLen      = 32
	UserRowLen  = 32
	UserRowAddr = 0x1300
)

// Control/status and ASI register addresses.
const (
	RegStatusA      byte = 0x00
	RegStatusB      byte = 0x01
	RegCtrlA        byte = 0x02
	RegCtrlB        byte = 0x03
	RegASIKeyStatus byte = 0x07
	RegASIResetReq  byte = 0x08
	RegASICtrlA     byte = 0x09
	RegASISysCtrlA  byte = 0x0A
	RegASISysStatus byte = 0x0B
	RegASICRCStatus byte = 0x0C

	csAddressMask = 0x0F
)

// Register bits.
const (
	CtrlAIBDLY    = 1 << 7
	CtrlBCCDETDIS = 1 << 3
	CtrlBUPDIDIS  = 1 << 2

	KeyStatusChipErase = 1 << 3
	KeyStatusNVMProg   = 1 << 4
	KeyStatusUROWWrite = 1 << 5

	SysStatusRSTSYS     = 1 << 5
	SysStatusINSLEEP    = 1 << 4
	SysStatusNVMProg    = 1 << 3
	SysStatusUROWProg   = 1 << 2
	SysStatusLockStatus = 1 << 0

	SysCtrlAUROWFinal = 1 << 1
)

// Instruction is the decoded form of an opcode byte.
type Instruction struct {
	Class Class

	// LD/ST
	Mode PtrMode

	// LDS/STS use both, LD/ST/REPEAT only Data
	Addr Width
	Data Width

	// LDCS/STCS
	Reg byte

	// KEY
	SIB  bool
	Size KeySize
}

// Encode assembles the opcode byte.
func (i Instruction) Encode() byte {
	switch i.Class {
	case ClassLDS, ClassSTS:
		return byte(i.Class) | byte(i.Addr&3)<<2 | byte(i.Data&3)
	case ClassLD, ClassST:
		return byte(i.Class) | byte(i.Mode&0x0C) | byte(i.Data&3)
	case ClassLDCS, ClassSTCS:
		if i.Reg > csAddressMask {
			panic(fmt.Sprintf("updi: CS register 0x%02x out of range", i.Reg))
		}
		return byte(i.Class) | i.Reg
	case ClassRepeat:
		return byte(i.Class) | byte(i.Data&3)
	case ClassKey:
		op := byte(i.Class) | byte(i.Size&3)
		if i.SIB {
			op |= keyFlagSIB
		}
		return op
	}
	panic(fmt.Sprintf("updi: invalid instruction class 0x%02x", byte(i.Class)))
}

// Decode splits an opcode byte into its fields.
func Decode(op byte) Instruction {
	i := Instruction{Class: Class(op & 0xE0)}

	switch i.Class {
	case ClassLDS, ClassSTS:
		i.Addr = Width((op >> 2) & 3)
		i.Data = Width(op & 3)
	case ClassLD, ClassST:
		i.Mode = PtrMode(op & 0x0C)
		i.Data = Width(op & 3)
	case ClassLDCS, ClassSTCS:
		i.Reg = op & csAddressMask
	case ClassRepeat:
		i.Data = Width(op & 3)
	case ClassKey:
		i.SIB = op&keyFlagSIB != 0
		i.Size = KeySize(op & 3)
	}

	return i
}

func (i Instruction) String() string {
	switch i.Class {
	case ClassLDS:
		return fmt.Sprintf("LDS a%d d%d", 8*(i.Addr+1), 8*(i.Data+1))
	case ClassSTS:
		return fmt.Sprintf("STS a%d d%d", 8*(i.Addr+1), 8*(i.Data+1))
	case ClassLD, ClassST:
		name := "LD"
		if i.Class == ClassST {
			name = "ST"
		}
		switch i.Mode {
		case PtrInc:
			return fmt.Sprintf("%s *(ptr++) d%d", name, 8*(i.Data+1))
		case PtrAddress:
			return fmt.Sprintf("%s ptr d%d", name, 8*(i.Data+1))
		}
		return fmt.Sprintf("%s *(ptr) d%d", name, 8*(i.Data+1))
	case ClassLDCS:
		return fmt.Sprintf("LDCS 0x%02x", i.Reg)
	case ClassSTCS:
		return fmt.Sprintf("STCS 0x%02x", i.Reg)
	case ClassRepeat:
		return fmt.Sprintf("REPEAT d%d", 8*(i.Data+1))
	case ClassKey:
		if i.SIB {
			return fmt.Sprintf("KEY SIB %d", 8<<i.Size)
		}
		return fmt.Sprintf("KEY %d", 8<<i.Size)
	}
	return "invalid"
}

func opLDCS(reg byte) byte {
	return Instruction{Class: ClassLDCS, Reg: reg}.Encode()
}

func opSTCS(reg byte) byte {
	return Instruction{Class: ClassSTCS, Reg: reg}.Encode()
}

var (
	opSTS16     = Instruction{Class: ClassSTS, Addr: Width16, Data: Width8}.Encode()
	opSTPtr16   = Instruction{Class: ClassST, Mode: PtrAddress, Data: Width16}.Encode()
	opSTPtrInc8 = Instruction{Class: ClassST, Mode: PtrInc, Data: Width8}.Encode()
	opLDPtrInc8 = Instruction{Class: ClassLD, Mode: PtrInc, Data: Width8}.Encode()
	opRepeat8   = Instruction{Class: ClassRepeat, Data: Width8}.Encode()
	opKey8      = Instruction{Class: ClassKey, Size: KeySize8}.Encode()
	opSIB32     = Instruction{Class: ClassKey, SIB: true, Size: KeySize32}.Encode()
)
