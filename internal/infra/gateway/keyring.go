package gateway

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keyring holds the signing keys of the accounts this node may act as.
type Keyring struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

func NewKeyring(privateKeys []string) (*Keyring, error) {
	k := &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey)}
	for _, hexKey := range privateKeys {
		if _, err := k.Add(hexKey); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add registers a hex encoded private key and returns its account address.
func (k *Keyring) Add(hexKey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[addr] = key
	return addr.Hex(), nil
}

func (k *Keyring) Accounts() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	accounts := make([]string, 0, len(k.keys))
	for addr := range k.keys {
		accounts = append(accounts, addr.Hex())
	}
	return accounts
}

func (k *Keyring) Has(account string) bool {
	if !common.IsHexAddress(account) {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[common.HexToAddress(account)]
	return ok
}

// Transactor returns fresh signing options for account.
func (k *Keyring) Transactor(account string, chainID *big.Int) (*bind.TransactOpts, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("invalid account %q", account)
	}
	k.mu.RLock()
	key, ok := k.keys[common.HexToAddress(account)]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no signing key for account %s", account)
	}
	return bind.NewKeyedTransactorWithChainID(key, chainID)
}
