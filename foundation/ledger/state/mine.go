package state

import (
	"context"
	"fmt"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

// Mine creates the next block from the open transaction pool. The
// proof-of-work search blocks the caller until a proof is found or the
// context is cancelled; a peer block accepted mid-search cancels it. The
// commit is all-or-nothing: if any pooled transaction fails the defensive
// signature re-check, no block is persisted and no transaction is marked
// mined.
func (s *State) Mine(ctx context.Context) (record.Block, error) {
	if s.wallet == nil {
		return record.Block{}, ErrNoWallet
	}

	s.evHandler("state: Mine: MINING: started")
	defer s.evHandler("state: Mine: MINING: completed")

	// Snapshot the pool and the chain tip. Transactions admitted after this
	// point wait for the next block.
	s.mu.Lock()
	snapshot := make([]record.Transaction, len(s.openTxs))
	copy(snapshot, s.openTxs)
	tip := s.latestBlock()
	nextIndex := uint64(len(s.chain))
	s.mu.Unlock()

	// Defensive re-check of every pooled signature before any work is spent.
	for _, tx := range snapshot {
		if !wallet.VerifyTransaction(tx) {
			s.evHandler("state: Mine: MINING: aborted: bad signature in pool: tx[%s]", tx)
			return record.Block{}, fmt.Errorf("pooled transaction failed re-verification: %w", ErrInvalidSignature)
		}
	}

	reward := record.NewRewardTransaction(s.wallet.AccountID(), s.miningReward, nextIndex)
	committed := append(snapshot, reward)

	merkleRoot, err := record.MerkleRoot(committed)
	if err != nil {
		return record.Block{}, err
	}

	tipHash := tip.Hash()

	// The search runs outside the mutex so admissions and queries proceed
	// while this node mines. Block ingestion cancels it through the
	// registered cancel func.
	searchCtx, cancel := context.WithCancel(ctx)
	s.registerMiningCancel(cancel)
	defer s.clearMiningCancel()

	s.evHandler("state: Mine: MINING: perform POW: txs[%d]", len(committed))

	proof, err := s.work.Search(searchCtx, tipHash, merkleRoot)
	if err != nil {
		return record.Block{}, err
	}

	block := record.NewBlock(nextIndex, tipHash, merkleRoot, proof)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The chain may have advanced while the search ran.
	if s.latestBlock().Hash() != tipHash {
		s.evHandler("state: Mine: MINING: aborted: chain advanced during search")
		return record.Block{}, ErrChainForked
	}

	sigs := make([]string, len(snapshot))
	for i, tx := range snapshot {
		sigs[i] = tx.Signature
	}

	if err := s.store.CommitMinedBlock(block, reward, sigs); err != nil {
		return record.Block{}, err
	}

	if err := s.reloadCaches(); err != nil {
		return record.Block{}, err
	}

	s.evHandler("state: Mine: MINING: block[%d] mined: proof[%d]", block.Index, block.Proof)

	txs := make([]record.Transaction, 0, len(committed))
	for _, tx := range snapshot {
		idx := block.Index
		tx.Mined = true
		tx.Block = &idx
		txs = append(txs, tx)
	}
	txs = append(txs, reward)

	s.signalShareBlock(BlockMessage{Block: block, Transactions: txs})

	return block, nil
}

// =============================================================================

// registerMiningCancel publishes the cancel func of an in-flight search so
// block ingestion and conflict resolution can stop it.
func (s *State) registerMiningCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.miningCancel = cancel
}

func (s *State) clearMiningCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.miningCancel = nil
}

// cancelActiveMining stops an in-flight proof-of-work search, if any. The
// search itself notices between iterations.
func (s *State) cancelActiveMining() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.miningCancel != nil {
		s.evHandler("state: cancelActiveMining: MINING: CANCEL: signaled")
		s.miningCancel()
	}
}
