package domain

import (
	"errors"
	"math/big"
	"testing"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testRequest() TransferRequest {
	return TransferRequest{
		FromAddress: "0x1111111111111111111111111111111111111111",
		ToAddress:   "0x2222222222222222222222222222222222222222",
		PrivateKey:  testKey,
		Value:       0.5,
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*TransferRequest)
		wantErr error
	}{
		{"valid", func(r *TransferRequest) {}, nil},
		{"missing from", func(r *TransferRequest) { r.FromAddress = "" }, ErrMissingField},
		{"missing to", func(r *TransferRequest) { r.ToAddress = "  " }, ErrMissingField},
		{"missing key", func(r *TransferRequest) { r.PrivateKey = "" }, ErrMissingField},
		{"bad from address", func(r *TransferRequest) { r.FromAddress = "not-an-address" }, ErrInvalidAddress},
		{"bad to address", func(r *TransferRequest) { r.ToAddress = "0x123" }, ErrInvalidAddress},
		{"bad key", func(r *TransferRequest) { r.PrivateKey = "zz" }, ErrInvalidKey},
		{"zero value", func(r *TransferRequest) { r.Value = 0 }, ErrInvalidAmount},
		{"negative value", func(r *TransferRequest) { r.Value = -1 }, ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRequest()
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected valid request, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSigningKey_AcceptsHexPrefix(t *testing.T) {
	req := testRequest()
	req.PrivateKey = "0x" + testKey

	if _, err := req.SigningKey(); err != nil {
		t.Fatalf("0x-prefixed key must parse, got %v", err)
	}
}

func TestAmountWei(t *testing.T) {
	testCases := []struct {
		value float64
		want  *big.Int
	}{
		{1, big.NewInt(1_000_000_000_000_000_000)},
		{0.5, big.NewInt(500_000_000_000_000_000)},
		{0.000000001, big.NewInt(1_000_000_000)},
	}

	for _, tc := range testCases {
		req := testRequest()
		req.Value = tc.value
		if got := req.AmountWei(); got.Cmp(tc.want) != 0 {
			t.Errorf("AmountWei(%f) = %s, want %s", tc.value, got, tc.want)
		}
	}
}
