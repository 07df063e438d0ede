// Package updiopen turns a target path into a connected updi.Session.
//
// Supported paths:
//
//	serial:<tty>[:baud[:dirpin[:powerpin]]]  UART, optional periph.io GPIOs
//	usb:[serial]:<tty>[:baud]                MCP2221A, GP0 switches power
//	sim                                      simulated target
package updiopen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/BertoldVdb/updiprog/updi/serialport"
	"github.com/BertoldVdb/updiprog/updi/updiopen/mcp2221a"
	"github.com/BertoldVdb/updiprog/updi/updisim"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const defaultBaud = 115200

// mcpPowerPin is the MCP2221A GP pin switching target power.
const mcpPowerPin = 0

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) || parts[index] == "" {
		return def
	}
	return parts[index]
}

func parseBaud(s string) (int, error) {
	baud, err := strconv.Atoi(s)
	if err != nil || baud < 300 || baud > 2000000 {
		return 0, fmt.Errorf("invalid baud rate %q", s)
	}
	return baud, nil
}

func platformPin(name string) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %v", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	return pin, nil
}

func pinSwitch(pin gpio.PinOut) updi.PowerSwitchType {
	return func(enable bool) error {
		value := gpio.Low
		if enable {
			value = gpio.High
		}
		return pin.Out(value)
	}
}

// OpenSerial opens a UART, optionally with a direction GPIO for a half
// duplex buffer and a GPIO switching target power.
func OpenSerial(device string, baud int, dirPin string, powerPin string, logFunc updi.LogFunc, opts ...updi.Option) (*updi.Session, error) {
	var portOpts []serialport.Option

	if dirPin != "" {
		pin, err := platformPin(dirPin)
		if err != nil {
			return nil, err
		}
		portOpts = append(portOpts, serialport.WithDirectionPin(pin), serialport.WithEcho(false))
	}

	var powerSet updi.PowerSwitchType
	if powerPin != "" {
		pin, err := platformPin(powerPin)
		if err != nil {
			return nil, err
		}
		pin.Out(gpio.Low)
		powerSet = pinSwitch(pin)
	}

	port, err := serialport.Open(device, baud, portOpts...)
	if err != nil {
		return nil, err
	}

	opts = append([]updi.Option{
		updi.WithLogFunc(logFunc),
		updi.WithBaudRate(baud),
		updi.WithPowerSwitch(powerSet),
	}, opts...)

	return connect(updi.New(port, opts...))
}

// OpenUSB opens the UART of an MCP2221A and uses its GP0 to switch target
// power. The HID handle is only held while power is on.
func OpenUSB(serial string, device string, baud int, logFunc updi.LogFunc, opts ...updi.Option) (*updi.Session, error) {
	var dev *mcp2221a.MCP2221A

	powerSet := func(enable bool) error {
		var err error
		if dev == nil {
			dev, err = mcp2221a.Open(serial)
			if err != nil {
				return err
			}
		}

		if enable {
			return dev.Set(mcpPowerPin, 1)
		}

		err = dev.Set(mcpPowerPin, 0)
		dev.Close()
		dev = nil
		return err
	}

	port, err := serialport.Open(device, baud)
	if err != nil {
		return nil, err
	}

	opts = append([]updi.Option{
		updi.WithLogFunc(logFunc),
		updi.WithBaudRate(baud),
		updi.WithPowerSwitch(powerSet),
	}, opts...)

	return connect(updi.New(port, opts...))
}

// OpenSim returns a session on a fresh simulated target running on the
// wall clock.
func OpenSim(logFunc updi.LogFunc, opts ...updi.Option) (*updi.Session, *updisim.Target, error) {
	target := updisim.New(nil)

	opts = append([]updi.Option{updi.WithLogFunc(logFunc)}, opts...)
	s, err := connect(updi.New(target, opts...))
	return s, target, err
}

// connect power cycles the target and brings the link up.
func connect(s *updi.Session) (*updi.Session, error) {
	if err := s.PowerCycle(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to power cycle target: %w", err)
	}

	if _, err := s.SendBreak(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize target: %w", err)
	}

	return s, nil
}

func Open(path string, logFunc updi.LogFunc, opts ...updi.Option) (*updi.Session, error) {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "serial":
		device := getPart(parts, 1, "/dev/ttyUSB0")
		baud, err := parseBaud(getPart(parts, 2, strconv.Itoa(defaultBaud)))
		if err != nil {
			return nil, err
		}
		return OpenSerial(device, baud, getPart(parts, 3, ""), getPart(parts, 4, ""), logFunc, opts...)

	case "usb":
		device := getPart(parts, 2, "/dev/ttyACM0")
		baud, err := parseBaud(getPart(parts, 3, strconv.Itoa(defaultBaud)))
		if err != nil {
			return nil, err
		}
		return OpenUSB(getPart(parts, 1, ""), device, baud, logFunc, opts...)

	case "sim":
		s, _, err := OpenSim(logFunc, opts...)
		return s, err
	}

	return nil, errors.New("target type not supported, use 'serial', 'usb' or 'sim'")
}
