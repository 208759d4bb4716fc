package state

// Balance computes the spendable balance of the node's own wallet.
func (s *State) Balance() (float64, error) {
	if s.wallet == nil {
		return 0, ErrNoWallet
	}

	return s.BalanceOf(s.wallet.AccountID()), nil
}

// BalanceOf computes a participant's spendable balance by scanning the full
// transaction history. Received funds count only once mined so unconfirmed
// incoming funds cannot be spent; sent funds count even while open so the
// same funds cannot back two pending transactions.
func (s *State) BalanceOf(participant string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balanceOf(participant)
}

// balanceOf is the lock-free variant for callers already holding the mutex.
func (s *State) balanceOf(participant string) float64 {
	var received, sent float64

	for _, tx := range s.minedTxs {
		if tx.Recipient == participant {
			received += tx.Amount
		}
		if tx.Sender == participant {
			sent += tx.Amount
		}
	}

	for _, tx := range s.openTxs {
		if tx.Sender == participant {
			sent += tx.Amount
		}
	}

	return received - sent
}
