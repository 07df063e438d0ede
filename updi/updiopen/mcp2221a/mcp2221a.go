// Package mcp2221a drives the GPIO pins of a Microchip MCP2221A USB bridge
// through its HID interface. The UART of the same chip shows up as a CDC
// serial port and is opened separately.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
package mcp2221a

// Derived from https://github.com/ardnew/mcp2221a
// MIT License
//
// Copyright (c) 2020 ardnew
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"errors"
	"fmt"

	usb "github.com/karalabe/hid"
)

const (
	VID = 0x04D8 // Microchip Technology Inc.
	PID = 0x00DD // MCP2221A
)

// MsgSz is the size of every command and response report.
const MsgSz = 64

const (
	WordSet byte = 0xFF
	WordClr byte = 0x00
)

const (
	cmdGPIOSet byte = 0x50
	cmdGPIOGet byte = 0x51
	cmdSRAMSet byte = 0x60
	cmdSRAMGet byte = 0x61
)

type (
	GPIOMode byte
	GPIODir  byte
)

const (
	GPPinCount = 4

	ModeGPIO    GPIOMode = 0x00
	ModeInvalid GPIOMode = 0xEE

	DirOutput GPIODir = 0x00
	DirInput  GPIODir = 0x01
)

var ErrNoDevice = errors.New("mcp2221a: no device found")

// HIDDevice is the part of a HID handle the driver uses.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2221A struct {
	dev HIDDevice
}

func makeMsg() []byte { return make([]byte, MsgSz) }

// AttachedDevices lists the bridges matching vid and pid.
func AttachedDevices(vid uint16, pid uint16) []usb.DeviceInfo {
	return usb.Enumerate(vid, pid)
}

// Open opens the bridge with the given USB serial number, or the first one
// found if serial is empty.
func Open(serial string) (*MCP2221A, error) {
	for _, info := range AttachedDevices(VID, PID) {
		if serial != "" && info.Serial != serial {
			continue
		}

		dev, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("mcp2221a: open %s: %w", info.Path, err)
		}
		return NewFromDev(dev), nil
	}

	return nil, ErrNoDevice
}

func NewFromDev(dev HIDDevice) *MCP2221A {
	return &MCP2221A{dev: dev}
}

func (mcp *MCP2221A) Close() error {
	if mcp.dev == nil {
		return nil
	}
	err := mcp.dev.Close()
	mcp.dev = nil
	return err
}

// send writes a command report and reads its response. The first response
// byte echoes the command and the second is zero on success.
func (mcp *MCP2221A) send(cmd byte, data []byte) ([]byte, error) {
	if mcp.dev == nil {
		return nil, errors.New("mcp2221a: device closed")
	}

	data[0] = cmd
	if _, err := mcp.dev.Write(data); err != nil {
		return nil, fmt.Errorf("write command 0x%02X: %w", cmd, err)
	}

	rsp := makeMsg()
	recv, err := mcp.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("read response 0x%02X: %w", cmd, err)
	}
	if recv < MsgSz {
		return rsp, fmt.Errorf("read response 0x%02X: short read (%d of %d bytes)", cmd, recv, MsgSz)
	}
	if rsp[0] != cmd || rsp[1] != WordClr {
		return rsp, fmt.Errorf("command 0x%02X failed", cmd)
	}

	return rsp, nil
}

func checkPin(pin byte) error {
	if pin >= GPPinCount {
		return fmt.Errorf("invalid GPIO pin: %d", pin)
	}
	return nil
}

// SetConfig switches pin to mode and direction with an initial value. The
// setting lives in SRAM and is lost on reset.
func (mcp *MCP2221A) SetConfig(pin byte, val byte, mode GPIOMode, dir GPIODir) error {
	if err := checkPin(pin); err != nil {
		return err
	}

	cur, err := mcp.send(cmdSRAMGet, makeMsg())
	if err != nil {
		return err
	}

	cmd := makeMsg()
	// All four GP designations are written at once.
	cmd[7] = WordSet
	copy(cmd[8:8+GPPinCount], cur[22:22+GPPinCount])
	cmd[8+pin] = (val&1)<<4 | byte(dir)<<3 | byte(mode)

	_, err = mcp.send(cmdSRAMSet, cmd)
	return err
}

// Set drives pin as an output.
func (mcp *MCP2221A) Set(pin byte, val byte) error {
	if err := checkPin(pin); err != nil {
		return err
	}

	cmd := makeMsg()
	i := 2 + 4*pin
	cmd[i+0] = WordSet
	cmd[i+1] = val
	cmd[i+2] = WordSet
	cmd[i+3] = byte(DirOutput)

	_, err := mcp.send(cmdGPIOSet, cmd)
	return err
}

// Get reads the level of pin.
func (mcp *MCP2221A) Get(pin byte) (byte, error) {
	if err := checkPin(pin); err != nil {
		return WordClr, err
	}

	rsp, err := mcp.send(cmdGPIOGet, makeMsg())
	if err != nil {
		return WordClr, err
	}

	i := 2 + 2*pin
	if rsp[i] == byte(ModeInvalid) {
		return WordClr, fmt.Errorf("pin not in GPIO mode: %d", pin)
	}
	return rsp[i], nil
}
