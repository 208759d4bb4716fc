package state

import (
	"fmt"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// ReceiveBlock processes a block broadcast by a peer. The block index
// dictates the outcome: the next expected index is validated and ingested, a
// higher index raises the conflict flag for resolution, and a lower index is
// rejected as stale. A rejection never mutates persisted state.
func (s *State) ReceiveBlock(msg BlockMessage) error {
	s.mu.Lock()
	localLength := uint64(len(s.chain))
	s.mu.Unlock()

	switch {
	case msg.Block.Index == localLength:
		return s.ingestBlock(msg)

	case msg.Block.Index > localLength:
		s.evHandler("state: ReceiveBlock: peer chain is ahead: got[%d] local[%d]", msg.Block.Index, localLength)
		s.RaiseConflict()
		return ErrChainForked

	default:
		s.evHandler("state: ReceiveBlock: stale block: got[%d] local[%d]", msg.Block.Index, localLength)
		return ErrStaleBlock
	}
}

// ingestBlock validates the candidate block against the proof-of-work
// predicate and the local chain tip, then commits the block, its reward
// transaction, and the mined status of matching open transactions as one
// unit. Transactions present in the incoming list but unknown locally are
// not admitted by this path.
func (s *State) ingestBlock(msg BlockMessage) error {
	s.evHandler("state: ingestBlock: started: block[%d]", msg.Block.Index)
	defer s.evHandler("state: ingestBlock: completed")

	if len(msg.Transactions) == 0 {
		return fmt.Errorf("block carries no reward transaction: %w", ErrInvalidBlock)
	}

	reward := msg.Transactions[len(msg.Transactions)-1]
	if !reward.IsReward() {
		return fmt.Errorf("last transaction is not the mining reward: %w", ErrInvalidBlock)
	}

	// The proof-of-work predicate is pure, so a forged block is rejected
	// here without disturbing an in-flight proof search.
	if !s.work.Verify(msg.Block.PreviousHash, msg.Block.MerkleRoot, msg.Block.Proof) {
		return fmt.Errorf("proof of work does not verify: %w", ErrInvalidBlock)
	}

	// Stop an in-flight search before taking the lock: the searching
	// goroutine holds no locks, but the chain is about to move under it.
	s.cancelActiveMining()

	s.mu.Lock()
	defer s.mu.Unlock()

	if tipHash := s.latestBlock().Hash(); tipHash != msg.Block.PreviousHash {
		return fmt.Errorf("previous hash does not match the local tip: %w", ErrInvalidBlock)
	}

	// The reward is trusted as-is; the peer minted it when mining. The other
	// transactions only reconcile already-open local transactions.
	idx := msg.Block.Index
	reward.Mined = true
	reward.Block = &idx

	sigs := make([]string, 0, len(msg.Transactions)-1)
	for _, tx := range msg.Transactions[:len(msg.Transactions)-1] {
		sigs = append(sigs, tx.Signature)
	}

	block, err := record.ToBlock(msg.Block.Index, msg.Block.PreviousHash, msg.Block.MerkleRoot, msg.Block.Proof, msg.Block.Timestamp)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalidBlock)
	}

	if err := s.store.CommitMinedBlock(block, reward, sigs); err != nil {
		return err
	}

	if err := s.reloadCaches(); err != nil {
		return err
	}

	s.evHandler("state: ingestBlock: block[%d] accepted", block.Index)

	return nil
}
