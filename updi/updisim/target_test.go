package updisim

import (
	"testing"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
)

func send(t *Target, data ...byte) {
	t.SetDirection(updi.DirTransmit)
	t.TransmitBuffer(data)
	t.SetDirection(updi.DirReceive)
}

func receive(t *Target) []byte {
	var out []byte
	for t.DataReady() {
		b, _ := t.ReceiveByte()
		out = append(out, b)
	}
	return out
}

func TestDisabledUntilBreak(t *testing.T) {
	target := New(nil)

	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegStatusA}.Encode())
	if got := receive(target); len(got) != 0 {
		t.Fatalf("disabled target answered %x", got)
	}

	target.SetBaud(300)
	send(target, 0x00)
	target.SetBaud(115200)
	if !target.Enabled() || target.Breaks() != 1 {
		t.Fatalf("break not detected: enabled %v, breaks %d", target.Enabled(), target.Breaks())
	}

	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegStatusA}.Encode())
	if got := receive(target); len(got) != 1 || got[0] != 0x30 {
		t.Fatalf("STATUSA = %x", got)
	}
	if target.CSReads(updi.RegStatusA) != 1 {
		t.Errorf("CSReads = %d", target.CSReads(updi.RegStatusA))
	}
}

func TestCollisions(t *testing.T) {
	target := New(nil)
	target.DriveBreak()

	// Transmitting with the line in receive.
	target.SetDirection(updi.DirReceive)
	target.Transmit(0x00)
	if target.Collisions() != 1 {
		t.Fatalf("collisions = %d", target.Collisions())
	}

	// Talking over an unread answer drops it.
	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegStatusA}.Encode())
	send(target, updi.PhySync)
	if target.Collisions() != 2 || len(receive(target)) != 0 {
		t.Fatalf("collisions = %d", target.Collisions())
	}
}

func TestKeysAndSIB(t *testing.T) {
	target := New(nil)
	target.DriveBreak()

	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassKey, SIB: true, Size: updi.KeySize32}.Encode())
	sib := receive(target)
	if len(sib) != updi.SIBLen || string(sib[:7]) != "tinyAVR" {
		t.Fatalf("SIB = %q", sib)
	}

	send(target, append([]byte{updi.PhySync, updi.Instruction{Class: updi.ClassKey, Size: updi.KeySize8}.Encode()}, updi.KeyChipErase[:]...)...)
	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegASIKeyStatus}.Encode())
	if got := receive(target); len(got) != 1 || got[0]&updi.KeyStatusChipErase == 0 {
		t.Fatalf("KEY_STATUS = %x", got)
	}
	if keys := target.Keys(); len(keys) != 1 || keys[0] != updi.KeyChipErase {
		t.Errorf("keys = %v", keys)
	}
}

func TestChipEraseUnlocksAfterDelay(t *testing.T) {
	clock := NewClock(time.Millisecond)
	target := New(clock)
	target.Locked = true
	target.UnlockDelay = 5 * time.Millisecond
	target.Poke(0x8000, []byte{1, 2, 3})
	target.DriveBreak()

	stcs := func(reg, v byte) {
		send(target, updi.PhySync, updi.Instruction{Class: updi.ClassSTCS, Reg: reg}.Encode(), v)
	}

	send(target, append([]byte{updi.PhySync, updi.Instruction{Class: updi.ClassKey, Size: updi.KeySize8}.Encode()}, updi.KeyChipErase[:]...)...)
	stcs(updi.RegASIResetReq, updi.ResetRequestValue)
	stcs(updi.RegASIResetReq, 0)

	if got := target.Peek(0x8000, 3); got[0] != 0xFF || got[2] != 0xFF {
		t.Fatalf("flash not erased: %x", got)
	}

	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegASISysStatus}.Encode())
	if got := receive(target); got[0]&updi.SysStatusLockStatus == 0 {
		t.Fatal("unlocked before the delay")
	}

	clock.Advance(10 * time.Millisecond)
	send(target, updi.PhySync, updi.Instruction{Class: updi.ClassLDCS, Reg: updi.RegASISysStatus}.Encode())
	if got := receive(target); got[0]&updi.SysStatusLockStatus != 0 {
		t.Fatal("still locked after the delay")
	}
}

func TestClockDeadline(t *testing.T) {
	clock := NewClock(time.Millisecond)
	d := clock.Start(3 * time.Millisecond)

	polls := 1
	for !d.Expired() {
		polls++
	}
	if polls != 3 || clock.Now() != 3*time.Millisecond {
		t.Errorf("polls %d, now %v", polls, clock.Now())
	}
}
