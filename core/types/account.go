package types

import "math/big"

// Account is the per-address ledger record. Balances are tracked per native
// token symbol; escrow custody moves value between participant accounts and
// the marketplace vault account.
type Account struct {
	Nonce        uint64   `json:"nonce"`
	BalanceCRAFT *big.Int `json:"balanceCRAFT"`
	BalanceFORGE *big.Int `json:"balanceFORGE"`
}
