package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/store"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

// SubmitTransaction signs a new transaction with the node's wallet, admits
// it into the open pool, and shares it with the known peers.
func (s *State) SubmitTransaction(recipient string, amount float64) (record.Transaction, error) {
	if s.wallet == nil {
		return record.Transaction{}, ErrNoWallet
	}

	timestamp := float64(time.Now().UTC().UnixNano()) / float64(time.Second)

	tx, err := s.wallet.SignTransaction(recipient, amount, timestamp)
	if err != nil {
		return record.Transaction{}, err
	}

	if err := s.admitTransaction(tx); err != nil {
		return record.Transaction{}, err
	}

	s.signalShareTx(tx)

	return tx, nil
}

// SubmitPeerTransaction admits a transaction broadcast by a peer. It is not
// re-shared: every node broadcasts only its own transactions.
func (s *State) SubmitPeerTransaction(tx record.Transaction) error {
	return s.admitTransaction(tx)
}

// =============================================================================

// admitTransaction validates a transaction and persists it as open. The
// checks run before anything is written: a rejection never mutates state.
func (s *State) admitTransaction(tx record.Transaction) error {
	s.evHandler("state: admitTransaction: started: tx[%s]", tx)

	// Reward transactions are minted by the mining path only. One arriving
	// over the wire is forged.
	if tx.IsReward() {
		return fmt.Errorf("reward transaction submitted for admission: %w", ErrInvalidSignature)
	}

	if !wallet.VerifyTransaction(tx) {
		return ErrInvalidSignature
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Transaction(tx.Signature); err == nil {
		return ErrDuplicateTx
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if balance := s.balanceOf(tx.Sender); tx.Amount > balance {
		s.evHandler("state: admitTransaction: rejected: balance[%f] amount[%f]", balance, tx.Amount)
		return ErrInsufficientFunds
	}

	if err := s.store.SaveTransaction(tx); err != nil {
		return err
	}

	if err := s.reloadCaches(); err != nil {
		return err
	}

	s.evHandler("state: admitTransaction: admitted: tx[%s]", tx)

	return nil
}
