package state

import (
	"context"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// Resolve polls every known peer's chain and replaces the local chain with
// the longest fully valid one found. Ties never replace. Unreachable peers
// are skipped; a partial fan-out failure never aborts resolution. Returns
// whether the local chain was replaced.
func (s *State) Resolve(ctx context.Context) (bool, error) {
	s.evHandler("state: Resolve: started")
	defer s.evHandler("state: Resolve: completed")

	// The flag is cleared unconditionally up front. Ingestion re-raises it
	// if a later broadcast shows the chains still disagree.
	s.ClearConflict()

	s.mu.Lock()
	winnerChain := make([]record.Block, len(s.chain))
	copy(winnerChain, s.chain)
	peers := make([]record.PeerNode, len(s.peers))
	copy(peers, s.peers)
	s.mu.Unlock()

	var winningPeer string

	for _, peer := range peers {
		resp, err := s.NetRequestChain(ctx, peer)
		if err != nil {
			s.evHandler("state: Resolve: peer[%s] unreachable: skipped: %s", peer.ID, err)
			continue
		}

		if len(resp.Chain) <= len(winnerChain) {
			continue
		}

		if err := s.validateChain(resp.Chain); err != nil {
			s.evHandler("state: Resolve: peer[%s] chain invalid: %s", peer.ID, err)
			continue
		}

		winnerChain = resp.Chain
		winningPeer = peer.ID
	}

	if winningPeer == "" {
		s.evHandler("state: Resolve: local chain kept")
		return false, nil
	}

	s.evHandler("state: Resolve: adopting chain of peer[%s]: length[%d]", winningPeer, len(winnerChain))

	// The winner's full transaction history repopulates this node.
	txs, err := s.NetRequestTransactions(ctx, record.PeerNode{ID: winningPeer})
	if err != nil {
		return false, err
	}

	s.cancelActiveMining()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The local chain may have advanced while the peers were polled. Replace
	// only if the winner is still strictly longer.
	if len(winnerChain) <= len(s.chain) {
		s.evHandler("state: Resolve: local chain advanced to length[%d]: kept", len(s.chain))
		return false, nil
	}

	if err := s.store.ReplaceChain(winnerChain, txs); err != nil {
		return false, err
	}

	if err := s.reloadCaches(); err != nil {
		return false, err
	}

	return true, nil
}

// validateChain runs the full-chain audit: every block after genesis must
// satisfy the proof-of-work predicate and link to the hash of its
// predecessor.
func (s *State) validateChain(chain []record.Block) error {
	if len(chain) == 0 {
		return ErrInvalidBlock
	}

	genesis := record.NewGenesisBlock()
	if chain[0] != genesis {
		return ErrInvalidBlock
	}

	for i := 1; i < len(chain); i++ {
		block := chain[i]

		if !s.work.Verify(block.PreviousHash, block.MerkleRoot, block.Proof) {
			return ErrInvalidBlock
		}

		if block.PreviousHash != chain[i-1].Hash() {
			return ErrInvalidBlock
		}
	}

	return nil
}

// =============================================================================

// ConflictPending reports whether a peer broadcast signalled that the chains
// disagree and resolution is required.
func (s *State) ConflictPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resolveConflicts
}

// RaiseConflict marks the local chain as requiring resolution and signals
// the worker.
func (s *State) RaiseConflict() {
	s.mu.Lock()
	s.resolveConflicts = true
	worker := s.Worker
	s.mu.Unlock()

	if worker != nil {
		worker.SignalResolve()
	}
}

// ClearConflict resets the conflict flag.
func (s *State) ClearConflict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolveConflicts = false
}
