package updi

import (
	"fmt"
	"strings"
)

// SIB is the raw system information block. The layout is fixed width
// ASCII:
//
//	[0:7]   family id
//	[8:11]  NVM version
//	[11:14] OCD version
//	[15:18] oscillator
//	[19:31] extra
type SIB [SIBLen]byte

func (s SIB) field(from, to int) string {
	return strings.TrimRight(string(s[from:to]), " \x00")
}

func (s SIB) Family() string       { return s.field(0, 7) }
func (s SIB) NVMVersion() string   { return s.field(8, 11) }
func (s SIB) DebugVersion() string { return s.field(11, 14) }
func (s SIB) OscInfo() string      { return s.field(15, 18) }
func (s SIB) Extra() string        { return s.field(19, 31) }

func (s SIB) String() string {
	return fmt.Sprintf("Family=%s NVM=%s OCD=%s Osc=%s Extra=%s", s.Family(), s.NVMVersion(), s.DebugVersion(), s.OscInfo(), s.Extra())
}

// SIBFromString pads or truncates a text to a SIB.
func SIBFromString(text string) SIB {
	var s SIB
	for i := range s {
		s[i] = ' '
	}
	copy(s[:], text)
	return s
}
