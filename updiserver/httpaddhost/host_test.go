package httpaddhost

import (
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"testing"
)

func TestMissingHostIsAdded(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	hosts := make(chan string, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts <- r.Host
		w.Write([]byte("ok"))
	})}
	go server.Serve(Wrap(l, "updi"))
	defer server.Close()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /info HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	rsp, err := ioutil.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(rsp), "HTTP/1.1 200") {
		t.Fatalf("response: %q", rsp)
	}
	if host := <-hosts; host != "updi" {
		t.Errorf("host = %q", host)
	}
}

func TestExistingHostKept(t *testing.T) {
	c := &conn{host: []byte("Host: updi\r\n"), inHeader: true}

	req := "PUT /userrow HTTP/1.1\r\nhost: bench\r\nContent-Length: 2\r\n\r\nab"
	if err := c.scan([]byte(req)); err != nil {
		t.Fatal(err)
	}
	if c.out.String() != req {
		t.Errorf("rewritten to %q", c.out.String())
	}
}

func TestOversizedHeader(t *testing.T) {
	c := &conn{host: []byte("Host: updi\r\n"), inHeader: true}

	if err := c.scan([]byte(strings.Repeat("x", maxLine+1))); err != errOversized {
		t.Errorf("scan = %v", err)
	}
}
