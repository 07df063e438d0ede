package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "updictl",
		Short: "Program AVR microcontrollers over UPDI",
		Long: `updictl runs UPDI operations on a target attached locally (serial port,
MCP2221A bridge or the built in simulator) or on a target exposed by an
updiserver.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.target, "target", "serial:/dev/ttyUSB0", "Local target path (serial:..., usb:..., sim)")
	pf.StringVar(&g.remote, "remote", "", "URL of a target on an updiserver, e.g. http://host:8067/0")
	pf.StringVar(&g.discover, "discover", "", "Find an updiserver exposing this target name over mDNS ('any' for the first)")
	pf.StringVar(&g.user, "user", "", "User name for updiserver authentication")
	pf.StringVar(&g.pass, "pass", "", "Password for updiserver authentication")
	pf.BoolVar(&g.verbose, "verbose", false, "Enable verbose logging")
	pf.BoolVar(&g.lineBreak, "linebreak", false, "Use the UART break condition")
	pf.DurationVar(&g.timeout, "discover-timeout", 5*time.Second, "mDNS discovery timeout")

	rootCmd.AddCommand(
		newInfoCmd(g),
		newBreakCmd(g),
		newSIBCmd(g),
		newEraseCmd(g),
		newResetCmd(g),
		newProgModeCmd(g),
		newUserRowCmd(g),
		newReadCmd(g),
		newWriteCmd(g),
		newCSCmd(g),
		newPowerCycleCmd(g),
	)

	return rootCmd
}

// run opens the programmer for the duration of fn.
func run(g *globalFlags, fn func(p programmer, out io.Writer) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, err := g.open()
		if err != nil {
			return err
		}
		defer p.Close()

		return fn(p, cmd.OutOrStdout())
	}
}

func result(out io.Writer, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", updi.ResultOf(err), err)
	}
	fmt.Fprintln(out, updi.ResultOK)
	return nil
}

func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %v", err)
	}
	return data, nil
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show link status and the system information block",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			sib, err := p.GetSIB()
			if err != nil {
				return result(out, err)
			}

			fmt.Fprintf(out, "Revision: %d\n", p.Revision())
			fmt.Fprintf(out, "Locked:   %v\n", p.IsLocked())
			fmt.Fprintf(out, "ProgMode: %v\n", p.InProgrammingMode())
			fmt.Fprintf(out, "Family:   %s\n", sib.Family())
			fmt.Fprintf(out, "NVM:      %s\n", sib.NVMVersion())
			fmt.Fprintf(out, "OCD:      %s\n", sib.DebugVersion())
			fmt.Fprintf(out, "Osc:      %s\n", sib.OscInfo())
			fmt.Fprintf(out, "Extra:    %s\n", sib.Extra())
			return nil
		}),
	}
}

func newBreakCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "break",
		Short: "Send a break and print STATUSA",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			status, err := p.SendBreak()
			if err != nil {
				return result(out, err)
			}
			fmt.Fprintf(out, "STATUSA: 0x%02x\n", status)
			return nil
		}),
	}
}

func newSIBCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sib",
		Short: "Dump the raw system information block",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			sib, err := p.GetSIB()
			if err != nil {
				return result(out, err)
			}
			fmt.Fprint(out, hex.Dump(sib[:]))
			return nil
		}),
	}
}

func newEraseCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase flash and EEPROM and remove the lock",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			return result(out, p.EraseChip())
		}),
	}
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the target",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			p.ResetDevice()
			return result(out, nil)
		}),
	}
}

func newProgModeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progmode",
		Short: "Enter or leave NVM programming mode",
	}

	cmd.AddCommand(&cobra.Command{
		Use:  "enter",
		Args: cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			return result(out, p.EnterProgrammingMode())
		}),
	}, &cobra.Command{
		Use:  "leave",
		Args: cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			p.LeaveProgrammingMode()
			return result(out, nil)
		}),
	})

	return cmd
}

func newUserRowCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "userrow",
		Short: "Read or write the 32 byte user row",
	}

	cmd.AddCommand(&cobra.Command{
		Use:  "read",
		Args: cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			row, err := p.ReadUserRow()
			if err != nil {
				return result(out, err)
			}
			fmt.Fprintln(out, hex.EncodeToString(row[:]))
			return nil
		}),
	}, &cobra.Command{
		Use:   "write <hex>",
		Short: "Write the user row, this also works on locked targets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(args[0])
			if err != nil {
				return err
			}
			if len(data) != updi.UserRowLen {
				return fmt.Errorf("%s: user row is %d bytes, got %d", updi.ResultInvalidSize, updi.UserRowLen, len(data))
			}

			var row [updi.UserRowLen]byte
			copy(row[:], data)

			return run(g, func(p programmer, out io.Writer) error {
				return result(out, p.WriteUserRow(row))
			})(cmd, args)
		},
	})

	return cmd
}

func newReadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <address> <length>",
		Short: "Read 1 to 256 bytes of data space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid length %q", args[1])
			}

			return run(g, func(p programmer, out io.Writer) error {
				data, err := p.Read(addr, n)
				if err != nil {
					return result(out, err)
				}
				fmt.Fprint(out, hex.Dump(data))
				return nil
			})(cmd, args)
		},
	}
}

func newWriteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "write <address> <hex>",
		Short: "Write 1 to 256 bytes of data space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			data, err := parseHex(args[1])
			if err != nil {
				return err
			}

			return run(g, func(p programmer, out io.Writer) error {
				return result(out, p.Write(addr, data))
			})(cmd, args)
		},
	}
}

func newCSCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cs <register>",
		Short: "Read a control/status register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := strconv.ParseUint(args[0], 0, 4)
			if err != nil {
				return fmt.Errorf("invalid register %q", args[0])
			}

			return run(g, func(p programmer, out io.Writer) error {
				v, err := p.ReadCS(byte(reg))
				if err != nil {
					return result(out, err)
				}
				fmt.Fprintf(out, "0x%02x\n", v)
				return nil
			})(cmd, args)
		},
	}
}

func newPowerCycleCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "powercycle",
		Short: "Switch target power off and on",
		Args:  cobra.NoArgs,
		RunE: run(g, func(p programmer, out io.Writer) error {
			return result(out, p.PowerCycle())
		}),
	}
}
