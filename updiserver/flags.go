package main

import (
	"flag"

	"github.com/BertoldVdb/updiprog/updiserver/config"
)

// applyFlagOverrides copies the flags given on the command line over the
// values loaded from a configuration file.
func applyFlagOverrides(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.String()

		switch f.Name {
		case "addr":
			cfg.Listen = value
		case "apikey":
			cfg.APIKey = value
		case "mdns":
			cfg.MDNS.Enabled = value == "true"
		case "mdns-iface":
			cfg.MDNS.Interface = value
		case "mdns-name":
			cfg.MDNS.Instance = value
		}
	})
}
