package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"walletEngine/internal/model"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0x1000000000000000000000000000000000000001 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr != common.HexToAddress("0x1000000000000000000000000000000000000001") {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
	if _, err := ParseAddress("0x123"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if ValidAddress("not-an-address") {
		t.Fatalf("expected invalid")
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, 1, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success after 2 calls, got %d %v", calls, err)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, time.Hour, func(context.Context) error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestNetworksRejectsUnknownNetwork(t *testing.T) {
	n := NewNetworks()
	_, err := n.Submit(context.Background(), model.Wallet{Network: "sepolia"}, model.Transaction{})
	if !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected unsupported network, got %v", err)
	}
	if n.Supports("sepolia") {
		t.Fatalf("nothing registered")
	}
}

func TestRetryDoesNotRetryContextErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, 1, func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || calls != 1 {
		t.Fatalf("expected a single call ending in deadline exceeded, got %d %v", calls, err)
	}
}
