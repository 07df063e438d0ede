package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/BertoldVdb/updiprog/updi/updiopen"
	"github.com/BertoldVdb/updiprog/updiserver/api"
	"github.com/BertoldVdb/updiprog/updiserver/discovery"
	"github.com/BertoldVdb/updiprog/updiserver/updiclient"
)

// programmer is satisfied by both a local *updi.Session and a remote
// *updiclient.Client.
type programmer interface {
	api.Target
	Close() error
}

type globalFlags struct {
	target    string
	remote    string
	discover  string
	user      string
	pass      string
	verbose   bool
	lineBreak bool
	timeout   time.Duration
}

func (g *globalFlags) logFunc() updi.LogFunc {
	if g.verbose {
		return log.Printf
	}
	return nil
}

func (g *globalFlags) open() (programmer, error) {
	remote := g.remote

	if g.discover != "" {
		if remote != "" {
			return nil, errors.New("--remote and --discover are exclusive")
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		name := g.discover
		if name == "any" {
			name = ""
		}

		r, err := discovery.Find(ctx, name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			if len(r.Targets) == 0 {
				return nil, fmt.Errorf("server %s has no targets", r.Instance)
			}
			name = r.Targets[0]
		}
		remote = r.URL(name)
	}

	if remote != "" {
		var opts []updiclient.Option
		if g.user != "" {
			opts = append(opts, updiclient.WithBasicAuth(g.user, g.pass))
		}

		c, err := updiclient.New(remote, opts...)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", remote, err)
		}
		c.LogFunc = g.logFunc()
		return c, nil
	}

	s, err := updiopen.Open(g.target, g.logFunc(), updi.WithLineBreak(g.lineBreak))
	if err != nil {
		return nil, err
	}
	return s, nil
}
