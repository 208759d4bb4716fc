// Package worker implements the background fan-out and conflict-resolution
// workflows for the ledger node.
package worker

import (
	"sync"
	"time"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/state"
)

// resolveInterval is how often the worker checks whether a raised conflict
// flag still needs a resolution pass.
const resolveInterval = time.Minute

// maxShareRequests caps the queued fan-out work so a flood of submissions
// degrades to dropped shares instead of unbounded memory.
const maxShareRequests = 100

// Worker manages the peer fan-out and resolution goroutines for the node.
type Worker struct {
	state      *state.State
	wg         sync.WaitGroup
	ticker     *time.Ticker
	shut       chan struct{}
	txSharing  chan record.Transaction
	blkSharing chan state.BlockMessage
	resolve    chan bool
	evHandler  state.EventHandler
}

// Run creates a worker, registers it with the state package, and starts up
// all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:      st,
		ticker:     time.NewTicker(resolveInterval),
		shut:       make(chan struct{}),
		txSharing:  make(chan record.Transaction, maxShareRequests),
		blkSharing: make(chan state.BlockMessage, maxShareRequests),
		resolve:    make(chan bool, 1),
		evHandler:  evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	operations := []func(){
		w.shareTxOperations,
		w.shareBlockOperations,
		w.resolveOperations,
	}

	g := len(operations)
	w.wg.Add(g)

	// Don't return until all the G's are up and running.
	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()
	close(w.shut)
	w.wg.Wait()
}

// SignalShareTx queues an admitted transaction for peer fan-out. A full
// queue drops the share; peers catch up through resolution.
func (w *Worker) SignalShareTx(tx record.Transaction) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transaction not shared")
	}
}

// SignalShareBlock queues a mined block for peer fan-out.
func (w *Worker) SignalShareBlock(msg state.BlockMessage) {
	select {
	case w.blkSharing <- msg:
		w.evHandler("worker: SignalShareBlock: share signaled")
	default:
		w.evHandler("worker: SignalShareBlock: queue full, block not shared")
	}
}

// SignalResolve requests a conflict-resolution pass. A pending signal means
// a pass will run, so additional requests collapse into it.
func (w *Worker) SignalResolve() {
	select {
	case w.resolve <- true:
		w.evHandler("worker: SignalResolve: resolve signaled")
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
