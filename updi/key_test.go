package updi

import (
	"bytes"
	"testing"
)

func TestKeysAreSentLSBFirst(t *testing.T) {
	tests := []struct {
		key  Key
		wire string
		name string
	}{
		{KeyNVMProg, " goRPMVN", "NVMProg "},
		{KeyChipErase, "esarEMVN", "NVMErase"},
		{KeyUserRow, "et&sUMVN", "NVMUs&te"},
	}

	for _, tt := range tests {
		if !bytes.Equal(tt.key[:], []byte(tt.wire)) {
			t.Errorf("key %q on the wire is %q, want %q", tt.name, tt.key[:], tt.wire)
		}
		if tt.key.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.key.String(), tt.name)
		}
	}
}
