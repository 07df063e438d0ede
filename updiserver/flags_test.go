package main

import (
	"flag"
	"io"
	"testing"

	"github.com/BertoldVdb/updiprog/updiserver/config"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()

	fs := flag.NewFlagSet("updiserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("addr", config.DefaultListen, "")
	fs.String("apikey", "", "")
	fs.Bool("mdns", false, "")
	fs.String("mdns-iface", "", "")
	fs.String("mdns-name", "", "")
	fs.Bool("verbose", false, "")

	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestFlagOverrides(t *testing.T) {
	loaded := config.Config{
		Listen: ":9000",
		APIKey: "fromfile",
		MDNS:   config.MDNSConfig{Enabled: true, Instance: "lab", Interface: "eth0"},
	}

	tests := []struct {
		name string
		args []string
		want config.Config
	}{
		{"no flags", nil, loaded},
		{"defaults are not overrides", []string{"-verbose"}, loaded},
		{"addr", []string{"-addr", ":8080"}, config.Config{
			Listen: ":8080", APIKey: "fromfile",
			MDNS: config.MDNSConfig{Enabled: true, Instance: "lab", Interface: "eth0"},
		}},
		{"mdns", []string{"-mdns=false", "-mdns-iface", "wlan0", "-mdns-name", "bench", "-apikey", "secret"}, config.Config{
			Listen: ":9000", APIKey: "secret",
			MDNS: config.MDNSConfig{Enabled: false, Instance: "bench", Interface: "wlan0"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loaded
			applyFlagOverrides(newFlagSet(t, tt.args...), &cfg)

			if cfg.Listen != tt.want.Listen || cfg.APIKey != tt.want.APIKey || cfg.MDNS != tt.want.MDNS {
				t.Errorf("got %+v, want %+v", cfg, tt.want)
			}
		})
	}
}
