package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(text []string, v4 net.IP, v6 net.IP) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry("bench", Service, Domain)
	e.Text = text
	e.Port = 8067
	if v4 != nil {
		e.AddrIPv4 = []net.IP{v4}
	}
	if v6 != nil {
		e.AddrIPv6 = []net.IP{v6}
	}
	return e
}

func TestParseEntry(t *testing.T) {
	a := NewAdvertiser("bench", 8067, []string{"board", "spare"}, true)

	r, ok := parseEntry(entry(a.txtRecord, net.ParseIP("192.168.1.20"), nil))
	if !ok {
		t.Fatal("entry rejected")
	}
	if r.Addr != "192.168.1.20:8067" || !r.Auth || len(r.Targets) != 2 {
		t.Errorf("result = %+v", r)
	}
	if r.URL("spare") != "http://192.168.1.20:8067/spare" {
		t.Errorf("URL = %q", r.URL("spare"))
	}
	if !r.has("board") || r.has("other") || !r.has("") {
		t.Error("target filter broken")
	}
}

func TestParseEntryIPv6(t *testing.T) {
	a := NewAdvertiser("", 8067, nil, false)

	r, ok := parseEntry(entry(a.txtRecord, nil, net.ParseIP("fe80::1")))
	if !ok || r.Addr != "[fe80::1]:8067" || r.Auth || len(r.Targets) != 0 {
		t.Errorf("result = %+v, %v", r, ok)
	}
}

func TestParseEntryRejects(t *testing.T) {
	if _, ok := parseEntry(entry([]string{"version=2"}, net.ParseIP("10.0.0.1"), nil)); ok {
		t.Error("unknown version accepted")
	}
	if _, ok := parseEntry(entry([]string{"version=1"}, nil, nil)); ok {
		t.Error("entry without address accepted")
	}
}
