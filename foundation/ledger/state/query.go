package state

import (
	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// Chain returns a copy of the in-memory chain.
func (s *State) Chain() []record.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := make([]record.Block, len(s.chain))
	copy(chain, s.chain)

	return chain
}

// LatestBlock returns the chain tip.
func (s *State) LatestBlock() record.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latestBlock()
}

// ChainLength returns the number of blocks in the local chain.
func (s *State) ChainLength() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.chain))
}

// OpenTransactions returns a copy of the open transaction pool.
func (s *State) OpenTransactions() []record.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]record.Transaction, len(s.openTxs))
	copy(txs, s.openTxs)

	return txs
}

// MinedTransactions returns a copy of the mined transaction set.
func (s *State) MinedTransactions() []record.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]record.Transaction, len(s.minedTxs))
	copy(txs, s.minedTxs)

	return txs
}

// AllTransactions returns the full local transaction history from the store.
func (s *State) AllTransactions() ([]record.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.AllTransactions()
}
