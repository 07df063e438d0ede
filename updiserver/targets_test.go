package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BertoldVdb/updiprog/updi/updiopen"
)

func TestParseTargetArg(t *testing.T) {
	tests := []struct {
		arg        string
		name, path string
	}{
		{"board=serial:/dev/ttyUSB0", "board", "serial:/dev/ttyUSB0"},
		{"serial:/dev/ttyUSB0", "updi3", "serial:/dev/ttyUSB0"},
		{"usb:A=B:/dev/ttyACM0", "updi3", "usb:A=B:/dev/ttyACM0"},
	}

	for _, tt := range tests {
		got := parseTargetArg(tt.arg, 3)
		if got.Name != tt.name || got.Path != tt.path {
			t.Errorf("parseTargetArg(%q) = %+v", tt.arg, got)
		}
	}
}

func TestBuildMux(t *testing.T) {
	s, _, err := updiopen.OpenSim(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	mux, err := buildMux([]mountedTarget{{name: "board", target: s}}, t.Logf)
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(mux)
	defer server.Close()

	get := func(path string) (int, []byte) {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode, body
	}

	code, body := get("/")
	var names []string
	if code != http.StatusOK || json.Unmarshal(body, &names) != nil || len(names) != 1 || names[0] != "board" {
		t.Fatalf("root: %d %s", code, body)
	}

	for _, prefix := range []string{"/board", "/0"} {
		if code, body := get(prefix + "/sib"); code != http.StatusOK || len(body) != 32 {
			t.Errorf("%s/sib: %d % x", prefix, code, body)
		}
	}

	if code, _ := get("/nothing"); code != http.StatusNotFound {
		t.Errorf("unknown path: %d", code)
	}
}
