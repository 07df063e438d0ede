// Package httpaddhost inserts a Host header into HTTP/1.1 requests that
// lack one. Small embedded HTTP clients, such as bench controllers driving
// the programmer, often omit it and net/http rejects those requests.
package httpaddhost

import (
	"bytes"
	"errors"
	"net"
	"sync/atomic"
)

const (
	maxLine   = 8 * 1024
	maxHeader = 64 * 1024
)

var errOversized = errors.New("httpaddhost: oversized header received")

type Listener struct {
	net.Listener
	host []byte
}

// Wrap returns a listener whose connections get "Host: host" added when
// needed.
func Wrap(listener net.Listener, host string) *Listener {
	return &Listener{
		Listener: listener,
		host:     []byte("Host: " + host + "\r\n"),
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	nc, err := l.Listener.Accept()
	if err != nil {
		return nc, err
	}

	return &conn{Conn: nc, host: l.host, inHeader: true}, nil
}

type conn struct {
	net.Conn
	host []byte

	inHeader bool
	hasHost  bool
	line     []byte
	header   bytes.Buffer
	out      bytes.Buffer

	// set by Write, a response ends the current request
	responded uint32
}

func isHostLine(line []byte) bool {
	return len(line) >= 5 && bytes.EqualFold(line[:5], []byte("host:"))
}

// scan consumes request bytes while in the header. Completed header blocks
// and body bytes go to out.
func (c *conn) scan(data []byte) error {
	for i, b := range data {
		if !c.inHeader {
			c.out.Write(data[i:])
			return nil
		}

		c.line = append(c.line, b)
		if len(c.line) > maxLine || c.header.Len() > maxHeader {
			return errOversized
		}
		if b != '\n' {
			continue
		}

		if isHostLine(c.line) {
			c.hasHost = true
		}

		blank := string(c.line) == "\r\n" || string(c.line) == "\n"
		if blank && c.header.Len() > 0 {
			if !c.hasHost {
				c.header.Write(c.host)
			}
			c.header.Write(c.line)
			c.out.Write(c.header.Bytes())
			c.header.Reset()
			c.inHeader = false
		} else {
			c.header.Write(c.line)
		}
		c.line = c.line[:0]
	}

	return nil
}

func (c *conn) Read(data []byte) (int, error) {
	for c.out.Len() == 0 {
		buf := make([]byte, len(data))
		n, err := c.Conn.Read(buf)
		if n == 0 && err != nil {
			return 0, err
		}

		if atomic.SwapUint32(&c.responded, 0) != 0 {
			c.inHeader = true
			c.hasHost = false
			c.line = c.line[:0]
			c.header.Reset()
		}

		if err := c.scan(buf[:n]); err != nil {
			c.Close()
			return 0, err
		}
	}

	return c.out.Read(data)
}

func (c *conn) Write(data []byte) (int, error) {
	atomic.StoreUint32(&c.responded, 1)
	return c.Conn.Write(data)
}
