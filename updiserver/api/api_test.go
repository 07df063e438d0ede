package api

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BertoldVdb/updiprog/updi"
	"github.com/BertoldVdb/updiprog/updi/updisim"
)

func newServer(t *testing.T) (*httptest.Server, *updisim.Target) {
	t.Helper()

	clock := updisim.NewClock(10 * time.Microsecond)
	target := updisim.New(clock)
	s := updi.New(target, updi.WithClock(clock))
	if _, err := s.SendBreak(); err != nil {
		t.Fatalf("SendBreak: %v", err)
	}

	server := httptest.NewServer(New("board", s))
	t.Cleanup(server.Close)

	return server, target
}

func do(t *testing.T, method string, url string, body []byte) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestInfo(t *testing.T) {
	server, _ := newServer(t)

	resp, body := do(t, "GET", server.URL+"/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %s: %s", resp.Status, body)
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "board" || info.SIB.Family != "tinyAVR" || !info.Link || info.Revision != 3 {
		t.Errorf("info = %+v", info)
	}
}

func TestMemory(t *testing.T) {
	server, target := newServer(t)

	data := []byte{1, 2, 3, 4, 5}
	resp, body := do(t, "PUT", server.URL+"/memory?addr=0x3810", data)
	if resp.StatusCode != http.StatusOK || resp.Header.Get(ResultHeader) != "ok" {
		t.Fatalf("PUT status %s: %s", resp.Status, body)
	}
	if !bytes.Equal(target.Peek(0x3810, 5), data) {
		t.Fatalf("memory = % x", target.Peek(0x3810, 5))
	}

	resp, body = do(t, "GET", server.URL+"/memory?addr=0x3810&len=5", nil)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, data) {
		t.Fatalf("GET %s: % x", resp.Status, body)
	}
}

func TestMemoryInvalidSize(t *testing.T) {
	server, target := newServer(t)

	tests := []struct {
		method string
		url    string
		body   []byte
	}{
		{"GET", "/memory?addr=0&len=0", nil},
		{"GET", "/memory?addr=0&len=257", nil},
		{"PUT", "/memory?addr=0", nil},
		{"PUT", "/memory?addr=0", make([]byte, 300)},
		{"PUT", "/userrow", make([]byte, 31)},
	}

	before := target.Calls()
	for _, tt := range tests {
		resp, _ := do(t, tt.method, server.URL+tt.url, tt.body)
		if resp.StatusCode != http.StatusBadRequest || resp.Header.Get(ResultHeader) != "invalid-size" {
			t.Errorf("%s %s: %s, result %q", tt.method, tt.url, resp.Status, resp.Header.Get(ResultHeader))
		}
	}
	if target.Calls() != before {
		t.Error("invalid requests reached the target")
	}
}

func TestUserRow(t *testing.T) {
	server, target := newServer(t)

	row := make([]byte, updi.UserRowLen)
	for i := range row {
		row[i] = byte(i)
	}

	resp, body := do(t, "PUT", server.URL+"/userrow", row)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status %s: %s", resp.Status, body)
	}
	if got := target.UserRow(); !bytes.Equal(got[:], row) {
		t.Fatalf("user row = % x", got)
	}

	resp, body = do(t, "GET", server.URL+"/userrow", nil)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, row) {
		t.Fatalf("GET %s: % x", resp.Status, body)
	}
}

func TestErrorMapping(t *testing.T) {
	server, target := newServer(t)
	target.Locked = true
	target.RejectKeys = true

	resp, _ := do(t, "POST", server.URL+"/erase", nil)
	if resp.StatusCode != http.StatusConflict || resp.Header.Get(ResultHeader) != "mode-change-failed" {
		t.Errorf("erase: %s, result %q", resp.Status, resp.Header.Get(ResultHeader))
	}

	resp, _ = do(t, "GET", server.URL+"/memory?addr=0x8000&len=4", nil)
	if resp.StatusCode != http.StatusGatewayTimeout || resp.Header.Get(ResultHeader) != "timeout" {
		t.Errorf("locked read: %s, result %q", resp.Status, resp.Header.Get(ResultHeader))
	}

	resp, _ = do(t, "GET", server.URL+"/erase", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /erase: %s", resp.Status)
	}
}

func TestProgModeAndReset(t *testing.T) {
	server, target := newServer(t)

	resp, _ := do(t, "POST", server.URL+"/progmode/enter", nil)
	if resp.StatusCode != http.StatusOK || !target.InProgrammingMode() {
		t.Fatalf("enter: %s", resp.Status)
	}

	resp, _ = do(t, "POST", server.URL+"/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: %s", resp.Status)
	}

	resp, _ = do(t, "POST", server.URL+"/progmode/leave", nil)
	if resp.StatusCode != http.StatusOK || target.Enabled() {
		t.Fatalf("leave: %s", resp.Status)
	}

	resp, body := do(t, "POST", server.URL+"/break", nil)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"Status": 48`)) {
		t.Fatalf("break: %s %s", resp.Status, body)
	}

	resp, body = do(t, "GET", server.URL+"/cs?reg=0x0b", nil)
	if resp.StatusCode != http.StatusOK || len(body) != 1 {
		t.Fatalf("cs: %s % x", resp.Status, body)
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[updi.Result]int{
		updi.ResultOK:               http.StatusOK,
		updi.ResultInvalidSize:      http.StatusBadRequest,
		updi.ResultModeChangeFailed: http.StatusConflict,
		updi.ResultTimeout:          http.StatusGatewayTimeout,
		updi.ResultNACK:             http.StatusBadGateway,
		updi.ResultWriteFailed:      http.StatusBadGateway,
	}

	for r, want := range tests {
		if got := StatusCode(r); got != want {
			t.Errorf("StatusCode(%v) = %d, want %d", r, got, want)
		}
	}
}

func TestStatus(t *testing.T) {
	server, target := newServer(t)
	target.Locked = true

	resp, body := do(t, "GET", server.URL+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %s", resp.Status)
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if !status.Link || !status.Locked || status.ProgMode {
		t.Errorf("status = %+v", status)
	}
}
