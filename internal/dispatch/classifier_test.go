package dispatch

import (
	"errors"
	"fmt"
	"testing"
)

func TestDefaultClassifier(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Class
	}{
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), ClassFatal},
		{"invalid sender", errors.New("invalid sender"), ClassFatal},
		{"gas limit exceeded", errors.New("exceeds block gas limit"), ClassFatal},
		{"intrinsic gas", errors.New("intrinsic gas too low"), ClassFatal},
		{"nonce too low", errors.New("nonce too low"), ClassSequencing},
		{"nonce too high", errors.New("nonce too high"), ClassSequencing},
		{"already known", errors.New("already known"), ClassSequencing},
		{"replacement underpriced", errors.New("replacement transaction underpriced"), ClassSequencing},
		{"case insensitive", errors.New("Nonce Too Low"), ClassSequencing},
		{"wrapped fatal", fmt.Errorf("rpc call failed: %w", errors.New("insufficient funds")), ClassFatal},
		{"connection reset", errors.New("connection reset by peer"), ClassTransient},
		{"timeout", errors.New("i/o timeout"), ClassTransient},
		{"unknown defaults to transient", errors.New("something unexpected"), ClassTransient},
		{"nil error", nil, ClassTransient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultClassifier(tc.err); got != tc.want {
				t.Fatalf("DefaultClassifier(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}
