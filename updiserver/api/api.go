package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/BertoldVdb/updiprog/updi"
)

// Target is the set of session operations the API exposes.
type Target interface {
	SendBreak() (byte, error)
	CheckLink() bool
	Revision() byte
	GetSIB() (updi.SIB, error)
	IsLocked() bool
	InProgrammingMode() bool
	EnterProgrammingMode() error
	LeaveProgrammingMode()
	EraseChip() error
	ResetDevice()
	ReadUserRow() ([updi.UserRowLen]byte, error)
	WriteUserRow(data [updi.UserRowLen]byte) error
	Read(address uint16, n int) ([]byte, error)
	Write(address uint16, data []byte) error
	ReadCS(reg byte) (byte, error)
	PowerCycle() error
}

const (
	ctBinary string = "application/octet-stream"
	ctJSON   string = "application/json"

	// ResultHeader carries the updi.Result of every operation.
	ResultHeader = "X-UPDI-Result"
)

// Status is the JSON document served on /status.
type Status struct {
	Revision byte
	Link     bool
	Locked   bool
	ProgMode bool
}

// Info is the JSON document served on /info.
type Info struct {
	Name string
	Status

	SIB struct {
		Raw          string
		Family       string
		NVMVersion   string
		DebugVersion string
		OscInfo      string
		Extra        string
	}
}

type API struct {
	mux    *http.ServeMux
	name   string
	target Target
}

func New(name string, target Target) *API {
	mux := &http.ServeMux{}

	s := &API{
		mux:    mux,
		name:   name,
		target: target,
	}

	mux.HandleFunc("/info", method("GET", s.infoHandler))
	mux.HandleFunc("/status", method("GET", s.statusHandler))
	mux.HandleFunc("/sib", method("GET", s.sibHandler))
	mux.HandleFunc("/break", method("POST", s.breakHandler))
	mux.HandleFunc("/userrow", s.userRowHandler)
	mux.HandleFunc("/memory", s.memoryHandler)
	mux.HandleFunc("/cs", method("GET", s.csHandler))
	mux.HandleFunc("/erase", method("POST", s.simple(target.EraseChip)))
	mux.HandleFunc("/progmode/enter", method("POST", s.simple(target.EnterProgrammingMode)))
	mux.HandleFunc("/progmode/leave", method("POST", s.simple(func() error {
		target.LeaveProgrammingMode()
		return nil
	})))
	mux.HandleFunc("/reset", method("POST", s.simple(func() error {
		target.ResetDevice()
		return nil
	})))
	mux.HandleFunc("/power/cycle", method("POST", s.simple(target.PowerCycle)))

	return s
}

func method(m string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

// StatusCode maps an engine result to an HTTP status.
func StatusCode(result updi.Result) int {
	switch result {
	case updi.ResultOK:
		return http.StatusOK
	case updi.ResultInvalidSize:
		return http.StatusBadRequest
	case updi.ResultModeChangeFailed:
		return http.StatusConflict
	case updi.ResultTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// finish writes the result header and, on failure, the error. It reports
// whether the handler may write a body.
func finish(w http.ResponseWriter, err error) bool {
	result := updi.ResultOf(err)
	w.Header().Set(ResultHeader, result.String())

	if err != nil {
		http.Error(w, err.Error(), StatusCode(result))
		return false
	}
	return true
}

func sendBinary(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", ctBinary)
	w.Write(data)
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctJSON)
	w.Write(data)
}

func (s *API) simple(op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		finish(w, op())
	}
}

func (s *API) status() Status {
	return Status{
		Revision: s.target.Revision(),
		Link:     s.target.CheckLink(),
		Locked:   s.target.IsLocked(),
		ProgMode: s.target.InProgrammingMode(),
	}
}

func (s *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := s.status()
	finish(w, nil)
	sendJSON(w, &status)
}

func (s *API) infoHandler(w http.ResponseWriter, r *http.Request) {
	var info Info
	info.Name = s.name
	info.Status = s.status()

	sib, err := s.target.GetSIB()
	if !finish(w, err) {
		return
	}

	info.SIB.Raw = string(sib[:])
	info.SIB.Family = sib.Family()
	info.SIB.NVMVersion = sib.NVMVersion()
	info.SIB.DebugVersion = sib.DebugVersion()
	info.SIB.OscInfo = sib.OscInfo()
	info.SIB.Extra = sib.Extra()

	sendJSON(w, &info)
}

func (s *API) sibHandler(w http.ResponseWriter, r *http.Request) {
	sib, err := s.target.GetSIB()
	if finish(w, err) {
		sendBinary(w, sib[:])
	}
}

func (s *API) breakHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.target.SendBreak()
	if finish(w, err) {
		sendJSON(w, &struct{ Status byte }{status})
	}
}

func readBody(r *http.Request, max int) ([]byte, error) {
	data, err := ioutil.ReadAll(io.LimitReader(r.Body, int64(max)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > max {
		return nil, updi.ErrInvalidSize
	}
	return data, nil
}

func (s *API) userRowHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		row, err := s.target.ReadUserRow()
		if finish(w, err) {
			sendBinary(w, row[:])
		}

	case "PUT":
		data, err := readBody(r, updi.UserRowLen)
		if err == nil && len(data) != updi.UserRowLen {
			err = updi.ErrInvalidSize
		}
		if err != nil {
			finish(w, err)
			return
		}

		var row [updi.UserRowLen]byte
		copy(row[:], data)
		finish(w, s.target.WriteUserRow(row))

	default:
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
	}
}

func parseUint(r *http.Request, name string, bits int) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	return strconv.ParseUint(v, 0, bits)
}

func (s *API) memoryHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := parseUint(r, "addr", 16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case "GET":
		n, err := parseUint(r, "len", 16)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := s.target.Read(uint16(addr), int(n))
		if finish(w, err) {
			sendBinary(w, data)
		}

	case "PUT":
		data, err := readBody(r, updi.MaxRepeatSize)
		if err != nil && !errors.Is(err, updi.ErrInvalidSize) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err == nil {
			err = s.target.Write(uint16(addr), data)
		}
		finish(w, err)

	default:
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
	}
}

func (s *API) csHandler(w http.ResponseWriter, r *http.Request) {
	reg, err := parseUint(r, "reg", 4)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := s.target.ReadCS(byte(reg))
	if finish(w, err) {
		sendBinary(w, []byte{v})
	}
}

func (s *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
