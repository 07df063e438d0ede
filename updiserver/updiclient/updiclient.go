// Package updiclient talks to one target of an updiserver. Client offers
// the method set of updi.Session, so callers can use either.
package updiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/BertoldVdb/updiprog/updiserver/api"
)

type Client struct {
	client http.Client
	url    string

	user, pass string

	info api.Info

	LogFunc updi.LogFunc
}

type Option func(*Client)

// WithBasicAuth sets the credentials generated by the server from its API
// key.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.user = user
		c.pass = pass
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// New connects to a target URL such as http://host:8067/0 and fetches its
// info document.
func New(url string, opts ...Option) (*Client, error) {
	c := &Client{
		client: http.Client{
			// A chip erase polls for up to 50 ticks, plenty of margin.
			Timeout: 10 * time.Second,
		},

		url: url,
	}

	for _, opt := range opts {
		opt(c)
	}

	infoRaw, err := c.doReq("GET", "info", nil)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(infoRaw, &c.info); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) log(format string, params ...interface{}) {
	if c.LogFunc != nil {
		c.LogFunc(" * "+format, params...)
	}
}

// doReq performs a request. Failures reported with a result header are
// returned as the matching updi sentinel error.
func (c *Client) doReq(method string, endpoint string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewBuffer(body)
	}

	req, err := http.NewRequest(method, c.url+"/"+endpoint, rdr)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if result, ok := updi.ParseResult(resp.Header.Get(api.ResultHeader)); ok && result != updi.ResultOK {
			return nil, fmt.Errorf("%s: %w", endpoint, result.Err())
		}
		return nil, fmt.Errorf("request error %s", resp.Status)
	}

	return ioutil.ReadAll(io.LimitReader(resp.Body, 8192))
}

func (c *Client) status() (api.Status, error) {
	var status api.Status

	raw, err := c.doReq("GET", "status", nil)
	if err != nil {
		return status, err
	}

	err = json.Unmarshal(raw, &status)
	return status, err
}

// Name is the name the server registered the target under.
func (c *Client) Name() string {
	return c.info.Name
}

func (c *Client) SendBreak() (byte, error) {
	raw, err := c.doReq("POST", "break", nil)
	if err != nil {
		return 0, err
	}

	var rsp struct{ Status byte }
	if err := json.Unmarshal(raw, &rsp); err != nil {
		return 0, err
	}
	return rsp.Status, nil
}

func (c *Client) CheckLink() bool {
	status, err := c.status()
	return err == nil && status.Link
}

func (c *Client) Revision() byte {
	status, err := c.status()
	if err != nil {
		return c.info.Revision
	}
	return status.Revision
}

// IsLocked reports a failed request as locked.
func (c *Client) IsLocked() bool {
	status, err := c.status()
	return err != nil || status.Locked
}

func (c *Client) InProgrammingMode() bool {
	status, err := c.status()
	return err == nil && status.ProgMode
}

func (c *Client) GetSIB() (updi.SIB, error) {
	var sib updi.SIB

	raw, err := c.doReq("GET", "sib", nil)
	if err != nil {
		return sib, err
	}
	if len(raw) != updi.SIBLen {
		return sib, fmt.Errorf("sib: got %d bytes", len(raw))
	}

	copy(sib[:], raw)
	return sib, nil
}

func (c *Client) EnterProgrammingMode() error {
	_, err := c.doReq("POST", "progmode/enter", nil)
	return err
}

func (c *Client) LeaveProgrammingMode() {
	if _, err := c.doReq("POST", "progmode/leave", nil); err != nil {
		c.log("Leaving programming mode failed: %v", err)
	}
}

func (c *Client) EraseChip() error {
	_, err := c.doReq("POST", "erase", nil)
	return err
}

func (c *Client) ResetDevice() {
	if _, err := c.doReq("POST", "reset", nil); err != nil {
		c.log("Reset failed: %v", err)
	}
}

func (c *Client) PowerCycle() error {
	_, err := c.doReq("POST", "power/cycle", nil)
	return err
}

func (c *Client) ReadUserRow() ([updi.UserRowLen]byte, error) {
	var row [updi.UserRowLen]byte

	raw, err := c.doReq("GET", "userrow", nil)
	if err != nil {
		return row, err
	}
	if len(raw) != updi.UserRowLen {
		return row, fmt.Errorf("userrow: got %d bytes", len(raw))
	}

	copy(row[:], raw)
	return row, nil
}

func (c *Client) WriteUserRow(data [updi.UserRowLen]byte) error {
	_, err := c.doReq("PUT", "userrow", data[:])
	return err
}

func memoryQuery(address uint16) string {
	return "memory?addr=0x" + strconv.FormatUint(uint64(address), 16)
}

func (c *Client) Read(address uint16, n int) ([]byte, error) {
	if n < 1 || n > updi.MaxRepeatSize {
		return nil, updi.ErrInvalidSize
	}

	raw, err := c.doReq("GET", memoryQuery(address)+"&len="+strconv.Itoa(n), nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != n {
		return nil, fmt.Errorf("memory: got %d of %d bytes", len(raw), n)
	}
	return raw, nil
}

func (c *Client) Write(address uint16, data []byte) error {
	if len(data) < 1 || len(data) > updi.MaxRepeatSize {
		return updi.ErrInvalidSize
	}

	_, err := c.doReq("PUT", memoryQuery(address), data)
	return err
}

func (c *Client) ReadCS(reg byte) (byte, error) {
	raw, err := c.doReq("GET", "cs?reg="+strconv.Itoa(int(reg)), nil)
	if err != nil {
		return 0, err
	}
	if len(raw) != 1 {
		return 0, fmt.Errorf("cs: got %d bytes", len(raw))
	}
	return raw[0], nil
}

func (c *Client) Close() error {
	return nil
}

var _ api.Target = (*Client)(nil)
