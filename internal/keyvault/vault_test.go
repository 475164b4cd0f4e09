package keyvault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"walletEngine/internal/model"
)

func TestCreateAndSign(t *testing.T) {
	v, err := New("correct horse", true, nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	address, encrypted, err := v.CreateKeyPair(context.Background())
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !common.IsHexAddress(address) || len(encrypted) == 0 {
		t.Fatalf("unexpected key pair %s (%d bytes)", address, len(encrypted))
	}

	chainID := big.NewInt(11155111)
	to := common.HexToAddress("0x4000000000000000000000000000000000000004")
	raw := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(5)})
	wallet := model.Wallet{ID: "w1", Address: address, EncryptedKey: encrypted}

	signed, err := v.SignTx(context.Background(), wallet, raw, chainID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != common.HexToAddress(address) {
		t.Fatalf("sender %s does not match wallet %s", sender.Hex(), address)
	}
}

func TestSignRejectsWrongPassphraseAndMismatch(t *testing.T) {
	v, _ := New("one", true, nil)
	other, _ := New("two", true, nil)
	address, encrypted, err := v.CreateKeyPair(context.Background())
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	to := common.HexToAddress("0x4000000000000000000000000000000000000004")
	raw := types.NewTx(&types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000, To: &to})

	if _, err := other.SignTx(context.Background(), model.Wallet{Address: address, EncryptedKey: encrypted}, raw, big.NewInt(1)); err == nil {
		t.Fatalf("expected decrypt failure with wrong passphrase")
	}
	wrong := model.Wallet{Address: "0x4000000000000000000000000000000000000004", EncryptedKey: encrypted}
	if _, err := v.SignTx(context.Background(), wrong, raw, big.NewInt(1)); !errors.Is(err, ErrAddressMismatch) {
		t.Fatalf("expected address mismatch, got %v", err)
	}
	if _, err := v.SignTx(context.Background(), model.Wallet{Address: address}, raw, big.NewInt(1)); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected no key, got %v", err)
	}
	if _, err := New("", true, nil); err == nil {
		t.Fatalf("expected empty passphrase error")
	}
}
