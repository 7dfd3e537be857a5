package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"craftledger/core/types"
	"craftledger/storage"
)

// Manager provides typed access to the ledger state held in a key-value
// backend. Values are RLP encoded; keys are hashed into a flat namespace.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database. The
// database may be an Overlay so that a whole unit of work commits atomically.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP-encodes the value and stores it under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

type storedAccount struct {
	Nonce        uint64
	BalanceCRAFT *big.Int
	BalanceFORGE *big.Int
}

// GetAccount loads the account record for the address, returning a zeroed
// account when none has been persisted yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{BalanceCRAFT: big.NewInt(0), BalanceFORGE: big.NewInt(0)}, nil
	}
	account := &types.Account{
		Nonce:        stored.Nonce,
		BalanceCRAFT: stored.BalanceCRAFT,
		BalanceFORGE: stored.BalanceFORGE,
	}
	if account.BalanceCRAFT == nil {
		account.BalanceCRAFT = big.NewInt(0)
	}
	if account.BalanceFORGE == nil {
		account.BalanceFORGE = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account record for the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	stored := storedAccount{
		Nonce:        account.Nonce,
		BalanceCRAFT: account.BalanceCRAFT,
		BalanceFORGE: account.BalanceFORGE,
	}
	if stored.BalanceCRAFT == nil {
		stored.BalanceCRAFT = big.NewInt(0)
	}
	if stored.BalanceFORGE == nil {
		stored.BalanceFORGE = big.NewInt(0)
	}
	return m.KVPut(accountKey(addr), &stored)
}
