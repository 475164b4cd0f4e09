package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"walletEngine/internal/model"
)

func TestJSONLDispatcherAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	d := NewJSONLDispatcher(path)
	ctx := context.Background()

	for _, id := range []string{"tx-1", "tx-2"} {
		if err := d.Notify(ctx, "u1", model.Event{Kind: model.EventTransactionConfirmed, TransactionID: id}); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	var lines []model.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e model.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 || lines[1].TransactionID != "tx-2" || lines[0].UserID != "u1" {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &Recorder{}
	bad := &Recorder{}
	boom := errors.New("smtp down")
	bad.FailWith(boom)

	err := Fanout{ok, bad, nil}.Notify(context.Background(), "u1", model.Event{Kind: model.EventWalletCreated})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.Events()) != 1 {
		t.Fatalf("healthy dispatcher should still receive the event")
	}
}
