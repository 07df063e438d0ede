package updi

import (
	"errors"
	"fmt"
	"testing"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want Result
	}{
		{nil, ResultOK},
		{ErrModeChangeFailed, ResultModeChangeFailed},
		{ErrWriteFailed, ResultWriteFailed},
		{ErrInvalidSize, ResultInvalidSize},
		{ErrTimeout, ResultTimeout},
		{ErrNACK, ResultNACK},
		{fmt.Errorf("set pointer: %w", ErrNACK), ResultNACK},
		{errors.New("serial port gone"), ResultTimeout},
	}

	for _, tt := range tests {
		if got := ResultOf(tt.err); got != tt.want {
			t.Errorf("ResultOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestResultRoundTrip(t *testing.T) {
	for r := ResultOK; r <= ResultNACK; r++ {
		if got := ResultOf(r.Err()); got != r {
			t.Errorf("ResultOf(%v.Err()) = %v", r, got)
		}

		parsed, ok := ParseResult(r.String())
		if !ok || parsed != r {
			t.Errorf("ParseResult(%q) = %v, %v", r.String(), parsed, ok)
		}
	}

	if _, ok := ParseResult("bogus"); ok {
		t.Error("ParseResult accepted an unknown name")
	}
}

func TestResultOrder(t *testing.T) {
	if ResultOK != 0 || ResultModeChangeFailed != 1 || ResultWriteFailed != 2 ||
		ResultInvalidSize != 3 || ResultTimeout != 4 || ResultNACK != 5 {
		t.Fatal("result codes changed their numeric values")
	}
}
