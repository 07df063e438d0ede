// Package discovery announces updiserver instances over mDNS and finds
// them again.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_updi._tcp"
	Domain  = "local."

	txtVersion = "1"
)

type Advertiser struct {
	name      string
	port      int
	txtRecord []string

	currentAddr string
	server      *zeroconf.Server
}

// NewAdvertiser prepares the announcement of a server listening on port
// that exposes targets.
func NewAdvertiser(name string, port int, targets []string, auth bool) *Advertiser {
	if name == "" {
		name = "updiserver"
	}

	authFlag := "0"
	if auth {
		authFlag = "1"
	}

	return &Advertiser{
		name: name,
		port: port,
		txtRecord: []string{
			"version=" + txtVersion,
			"targets=" + strings.Join(targets, ","),
			"auth=" + authFlag,
		},
	}
}

func (a *Advertiser) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.currentAddr = ""
}

func getIfaceAddressV4(iface *net.Interface) (string, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}

	for _, m := range addrs {
		k, ok := m.(*net.IPNet)
		if ok && k.IP.To4() != nil {
			return k.IP.String(), nil
		}
	}

	return "", nil
}

func getIfaceAddressV4Timeout(iface *net.Interface, maxWaitIP time.Duration) (string, error) {
	for deadline := time.Now().Add(maxWaitIP); time.Now().Before(deadline); {
		addr, err := getIfaceAddressV4(iface)
		if err != nil {
			return "", err
		}

		if addr != "" {
			return addr, nil
		}

		time.Sleep(250 * time.Millisecond)
	}

	return "", errors.New("timeout waiting for IPv4 address")
}

// Start announces the service. With an empty ifaceName every multicast
// interface is used and the host's own name is published.
func (a *Advertiser) Start(ifaceName string, maxWaitIP time.Duration) error {
	a.Stop()

	if ifaceName == "" {
		server, err := zeroconf.Register(a.name, Service, Domain, a.port, a.txtRecord, nil)
		if err != nil {
			return err
		}
		server.TTL(60)

		a.currentAddr = fmt.Sprintf(":%d", a.port)
		a.server = server
		return nil
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return err
	}

	addr, err := getIfaceAddressV4Timeout(iface, maxWaitIP)
	if err != nil {
		return err
	}

	server, err := zeroconf.RegisterProxy(a.name, Service, Domain, a.port, a.name, []string{addr}, a.txtRecord, []net.Interface{*iface})
	if err != nil {
		return err
	}
	server.TTL(60)

	a.currentAddr = fmt.Sprintf("%s:%d", addr, a.port)
	a.server = server
	return nil
}

func (a *Advertiser) CurrentAddress() string {
	return a.currentAddr
}

// Result is one discovered server.
type Result struct {
	Instance string
	Addr     string
	Targets  []string
	Auth     bool
}

// URL returns the base URL of target on the server.
func (r Result) URL(target string) string {
	return "http://" + r.Addr + "/" + target
}

func parseEntry(entry *zeroconf.ServiceEntry) (Result, bool) {
	result := Result{Instance: entry.Instance}

	var version string
	for _, m := range entry.Text {
		kv := strings.SplitN(m, "=", 2)
		if len(kv) != 2 {
			continue
		}

		switch strings.ToLower(kv[0]) {
		case "version":
			version = kv[1]
		case "targets":
			if kv[1] != "" {
				result.Targets = strings.Split(kv[1], ",")
			}
		case "auth":
			result.Auth = kv[1] == "1"
		}
	}

	if version != txtVersion {
		return result, false
	}

	var addr string
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		addr = "[" + entry.AddrIPv6[0].String() + "]"
	} else {
		return result, false
	}

	result.Addr = fmt.Sprintf("%s:%d", addr, entry.Port)
	return result, true
}

// Find browses for servers until one exposing target is found, or any server
// if target is empty.
func Find(ctx context.Context, target string) (Result, error) {
	var result Result

	// The resolver is not reused, the network may change between calls.
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return result, err
	}

	results := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := resolver.Browse(ctx, Service, Domain, results); err != nil {
		return result, err
	}

	for entry := range results {
		r, ok := parseEntry(entry)
		if !ok || !r.has(target) {
			continue
		}
		return r, nil
	}

	return result, errors.New("no updiserver found")
}

func (r Result) has(target string) bool {
	if target == "" {
		return true
	}
	for _, m := range r.Targets {
		if m == target {
			return true
		}
	}
	return false
}
