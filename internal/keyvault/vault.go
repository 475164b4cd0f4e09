// Package keyvault generates and guards the custodial signing keys of wallets. Keys are
// stored only in scrypt-encrypted keystore form.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletEngine/internal/model"
)

var (
	ErrNoKey           = errors.New("wallet has no key material")
	ErrAddressMismatch = errors.New("key does not match wallet address")
)

// Vault encrypts keys with a single passphrase.
type Vault struct {
	passphrase string
	scryptN    int
	scryptP    int
	logger     *zap.Logger
}

// New returns a vault using standard scrypt parameters, or the light ones when light is set.
func New(passphrase string, light bool, logger *zap.Logger) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("keystore passphrase is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Vault{
		passphrase: passphrase,
		scryptN:    keystore.StandardScryptN,
		scryptP:    keystore.StandardScryptP,
		logger:     logger,
	}
	if light {
		v.scryptN = keystore.LightScryptN
		v.scryptP = keystore.LightScryptP
	}
	return v, nil
}

// CreateKeyPair generates a secp256k1 key and returns its address and encrypted form.
func (v *Vault) CreateKeyPair(_ context.Context) (string, []byte, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	encrypted, err := keystore.EncryptKey(key, v.passphrase, v.scryptN, v.scryptP)
	if err != nil {
		return "", nil, fmt.Errorf("encrypt key: %w", err)
	}
	v.logger.Debug("key created", zap.String("address", key.Address.Hex()))
	return key.Address.Hex(), encrypted, nil
}

// SignTx decrypts the wallet key and signs tx for chainID.
func (v *Vault) SignTx(_ context.Context, wallet model.Wallet, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if len(wallet.EncryptedKey) == 0 {
		return nil, ErrNoKey
	}
	key, err := keystore.DecryptKey(wallet.EncryptedKey, v.passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	if key.Address != common.HexToAddress(wallet.Address) {
		return nil, ErrAddressMismatch
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}

