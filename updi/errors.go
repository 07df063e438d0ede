package updi

import "errors"

var (
	// ErrModeChangeFailed means a key was sent but the matching key status
	// bit did not appear. Retrying the same key without a new break is not
	// useful.
	ErrModeChangeFailed = errors.New("updi: mode change failed")

	// ErrWriteFailed is reserved for write verification done by callers.
	ErrWriteFailed = errors.New("updi: write failed")

	// ErrInvalidSize is returned before anything is sent when a transfer
	// length is outside 1..256.
	ErrInvalidSize = errors.New("updi: invalid size")

	ErrTimeout = errors.New("updi: timeout")
	ErrNACK    = errors.New("updi: not acknowledged")
)

// Result is the compact status code reported to callers that cannot carry
// Go errors, such as a network API.
type Result uint8

const (
	ResultOK Result = iota
	ResultModeChangeFailed
	ResultWriteFailed
	ResultInvalidSize
	ResultTimeout
	ResultNACK
)

// ResultOf maps an error returned by a Session to a Result. Errors that do
// not come from the protocol layer are physical link trouble and are
// reported as ResultTimeout.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrModeChangeFailed):
		return ResultModeChangeFailed
	case errors.Is(err, ErrWriteFailed):
		return ResultWriteFailed
	case errors.Is(err, ErrInvalidSize):
		return ResultInvalidSize
	case errors.Is(err, ErrNACK):
		return ResultNACK
	}
	return ResultTimeout
}

// Err converts a Result back to the matching sentinel error.
func (r Result) Err() error {
	switch r {
	case ResultOK:
		return nil
	case ResultModeChangeFailed:
		return ErrModeChangeFailed
	case ResultWriteFailed:
		return ErrWriteFailed
	case ResultInvalidSize:
		return ErrInvalidSize
	case ResultNACK:
		return ErrNACK
	}
	return ErrTimeout
}

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultModeChangeFailed:
		return "mode-change-failed"
	case ResultWriteFailed:
		return "write-failed"
	case ResultInvalidSize:
		return "invalid-size"
	case ResultTimeout:
		return "timeout"
	case ResultNACK:
		return "not-acknowledged"
	}
	return "unknown"
}

// ParseResult is the inverse of Result.String.
func ParseResult(s string) (Result, bool) {
	for r := ResultOK; r <= ResultNACK; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return ResultTimeout, false
}
