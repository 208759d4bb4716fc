// Package state is the core API for the ledger and implements all the
// business rules and processing: transaction admission, mining, block
// ingestion, and longest-valid-chain conflict resolution.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/pow"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/store"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

// DefaultMiningReward is credited to the miner of each block.
const DefaultMiningReward = 10

// Set of errors surfaced to callers. All are recoverable rejections; none of
// them mutates persisted state.
var (
	ErrNoWallet          = errors.New("no wallet is set up on this node")
	ErrInvalidSignature  = errors.New("transaction signature is invalid")
	ErrInsufficientFunds = errors.New("sender balance does not cover the amount")
	ErrDuplicateTx       = errors.New("transaction already exists")
	ErrInvalidBlock      = errors.New("block failed validation")
	ErrStaleBlock        = errors.New("block is older than the local chain")
	ErrChainForked       = errors.New("peer chain differs from the local chain, resolve conflicts first")
)

// EventHandler defines a function that is called when events occur in the
// processing of the ledger.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block and transaction sharing and conflict
// resolution.
type Worker interface {
	Shutdown()
	SignalShareTx(tx record.Transaction)
	SignalShareBlock(msg BlockMessage)
	SignalResolve()
}

// =============================================================================

// BlockMessage is the wire shape for broadcasting a block together with its
// ordered transaction list, reward transaction last.
type BlockMessage struct {
	Block        record.Block         `json:"block"`
	Transactions []record.Transaction `json:"transactions"`
}

// ChainResponse is the wire shape returned by a peer's chain query.
type ChainResponse struct {
	Chain             []record.Block       `json:"chain"`
	MinedTransactions []record.Transaction `json:"mined_transactions"`
}

// =============================================================================

// Config represents the configuration required to start the ledger node.
type Config struct {
	Wallet       *wallet.Wallet // nil when the node runs without a key pair.
	Host         string
	Store        *store.Store
	Difficulty   int
	MiningReward float64
	EvHandler    EventHandler
}

// State manages the ledger. It exclusively owns the in-memory chain and
// open-transaction pool; the store is the durable source of truth and the
// caches are reloaded from it after every write.
type State struct {
	mu           sync.Mutex
	wallet       *wallet.Wallet
	host         string
	store        *store.Store
	work         pow.Work
	miningReward float64
	evHandler    EventHandler

	chain    []record.Block
	openTxs  []record.Transaction
	minedTxs []record.Transaction
	peers    []record.PeerNode

	resolveConflicts bool
	miningCancel     context.CancelFunc

	// Worker is assigned by the worker package when it starts up.
	Worker Worker
}

// New constructs the state for ledger management. A store holding zero
// blocks receives the genesis block; if that write fails the node cannot
// participate and startup must abort.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	reward := cfg.MiningReward
	if reward <= 0 {
		reward = DefaultMiningReward
	}

	s := State{
		wallet:       cfg.Wallet,
		host:         cfg.Host,
		store:        cfg.Store,
		work:         pow.New(cfg.Difficulty),
		miningReward: reward,
		evHandler:    ev,
	}

	blocks, err := cfg.Store.Blocks()
	if err != nil {
		return nil, fmt.Errorf("loading chain: %w", err)
	}

	if len(blocks) == 0 {
		genesis := record.NewGenesisBlock()
		if err := cfg.Store.SaveBlock(genesis); err != nil {
			return nil, fmt.Errorf("initializing genesis block: %w", err)
		}
		ev("state: new: genesis block created")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadCaches(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.store.Close()
}

// Host returns the network address this node is reachable on by peers.
func (s *State) Host() string {
	return s.host
}

// AccountID returns the participant identifier of the node's wallet.
func (s *State) AccountID() (string, error) {
	if s.wallet == nil {
		return "", ErrNoWallet
	}

	return s.wallet.AccountID(), nil
}

// =============================================================================

// reloadCaches refreshes the in-memory chain, transaction pools, and peer
// list from the store. Read-your-writes: called after every mutating
// operation while holding the mutex.
func (s *State) reloadCaches() error {
	chain, err := s.store.Blocks()
	if err != nil {
		return fmt.Errorf("reloading chain: %w", err)
	}

	openTxs, err := s.store.OpenTransactions()
	if err != nil {
		return fmt.Errorf("reloading open transactions: %w", err)
	}

	minedTxs, err := s.store.MinedTransactions()
	if err != nil {
		return fmt.Errorf("reloading mined transactions: %w", err)
	}

	peers, err := s.store.Peers()
	if err != nil {
		return fmt.Errorf("reloading peers: %w", err)
	}

	s.chain = chain
	s.openTxs = openTxs
	s.minedTxs = minedTxs
	s.peers = peers

	return nil
}

// latestBlock returns the chain tip. The caller must hold the mutex.
func (s *State) latestBlock() record.Block {
	return s.chain[len(s.chain)-1]
}

// signalShareTx hands an admitted transaction to the worker for peer fan-out.
func (s *State) signalShareTx(tx record.Transaction) {
	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
	}
}

// signalShareBlock hands a mined block to the worker for peer fan-out.
func (s *State) signalShareBlock(msg BlockMessage) {
	if s.Worker != nil {
		s.Worker.SignalShareBlock(msg)
	}
}
