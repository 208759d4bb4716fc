package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/state"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/store"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/wallet"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// newState constructs a node with a fresh store and its own wallet. A nil
// wallet builds a relay-only node.
func newState(t *testing.T, w *wallet.Wallet, difficulty int) *state.State {
	t.Helper()

	db, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}

	st, err := state.New(state.Config{
		Wallet:     w,
		Host:       "localhost:9080",
		Store:      db,
		Difficulty: difficulty,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	return st
}

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, err := wallet.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a wallet: %v", failed, err)
	}

	return w
}

// =============================================================================

func Test_MineAndBalances(t *testing.T) {
	t.Log("Given the need to mine blocks and track balances.")
	{
		miner := newWallet(t)
		recipient := newWallet(t)
		st := newState(t, miner, 1)

		if st.ChainLength() != 1 {
			t.Fatalf("\t%s\tShould start with the genesis block only, got length %d.", failed, st.ChainLength())
		}
		t.Logf("\t%s\tShould start with the genesis block only.", success)

		// A fresh account holds nothing, so any spend is an overdraft.
		if _, err := st.SubmitTransaction(recipient.AccountID(), 1); !errors.Is(err, state.ErrInsufficientFunds) {
			t.Fatalf("\t%s\tShould reject a spend from an empty account: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a spend from an empty account.", success)

		block, err := st.Mine(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if block.Index != 1 {
			t.Errorf("\t%s\tShould mine block 1, got %d.", failed, block.Index)
		}
		if st.ChainLength() != 2 {
			t.Errorf("\t%s\tShould have a chain of length 2, got %d.", failed, st.ChainLength())
		}

		funds, err := st.Balance()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to compute the balance: %v", failed, err)
		}
		if funds != state.DefaultMiningReward {
			t.Errorf("\t%s\tShould hold the mining reward, got %f.", failed, funds)
		} else {
			t.Logf("\t%s\tShould hold the mining reward.", success)
		}

		tx, err := st.SubmitTransaction(recipient.AccountID(), 4)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to submit a funded transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to submit a funded transaction.", success)

		if len(st.OpenTransactions()) != 1 {
			t.Errorf("\t%s\tShould hold the transaction in the open pool.", failed)
		}

		// Open sends reduce the spendable balance, open receipts do not count.
		if funds, _ := st.Balance(); funds != 6 {
			t.Errorf("\t%s\tShould reserve the open spend, got %f.", failed, funds)
		} else {
			t.Logf("\t%s\tShould reserve the open spend.", success)
		}
		if got := st.BalanceOf(recipient.AccountID()); got != 0 {
			t.Errorf("\t%s\tShould not credit an unmined receipt, got %f.", failed, got)
		} else {
			t.Logf("\t%s\tShould not credit an unmined receipt.", success)
		}

		if err := st.SubmitPeerTransaction(tx); !errors.Is(err, state.ErrDuplicateTx) {
			t.Errorf("\t%s\tShould reject a duplicate submission: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a duplicate submission.", success)
		}

		if _, err := st.Mine(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine the open pool: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine the open pool.", success)

		if len(st.OpenTransactions()) != 0 {
			t.Errorf("\t%s\tShould have drained the open pool.", failed)
		}
		if funds, _ := st.Balance(); funds != 16 {
			t.Errorf("\t%s\tShould hold two rewards minus the spend, got %f.", failed, funds)
		} else {
			t.Logf("\t%s\tShould hold two rewards minus the spend.", success)
		}
		if got := st.BalanceOf(recipient.AccountID()); got != 4 {
			t.Errorf("\t%s\tShould credit the mined receipt, got %f.", failed, got)
		} else {
			t.Logf("\t%s\tShould credit the mined receipt.", success)
		}
	}
}

func Test_NoWallet(t *testing.T) {
	t.Log("Given the need to run a node without a wallet.")
	{
		st := newState(t, nil, 1)

		if _, err := st.Mine(context.Background()); !errors.Is(err, state.ErrNoWallet) {
			t.Errorf("\t%s\tShould refuse to mine without a wallet: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould refuse to mine without a wallet.", success)
		}

		if _, err := st.SubmitTransaction("bob", 1); !errors.Is(err, state.ErrNoWallet) {
			t.Errorf("\t%s\tShould refuse to sign without a wallet: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould refuse to sign without a wallet.", success)
		}

		if _, err := st.Balance(); !errors.Is(err, state.ErrNoWallet) {
			t.Errorf("\t%s\tShould have no own balance without a wallet: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould have no own balance without a wallet.", success)
		}
	}
}

func Test_AdmitPeerTransaction(t *testing.T) {
	t.Log("Given the need to validate transactions broadcast by peers.")
	{
		miner := newWallet(t)
		st := newState(t, miner, 1)

		if _, err := st.Mine(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine for funds: %v", failed, err)
		}

		tx, err := miner.SignTransaction("bob", 3, 42.5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
		}

		if err := st.SubmitPeerTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould admit a valid peer transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould admit a valid peer transaction.", success)

		tampered, err := miner.SignTransaction("bob", 1, 43.5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
		}
		tampered.Amount = 9

		if err := st.SubmitPeerTransaction(tampered); !errors.Is(err, state.ErrInvalidSignature) {
			t.Errorf("\t%s\tShould reject a tampered peer transaction: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a tampered peer transaction.", success)
		}

		forged := record.NewRewardTransaction("thief", 1000, 9)
		if err := st.SubmitPeerTransaction(forged); !errors.Is(err, state.ErrInvalidSignature) {
			t.Errorf("\t%s\tShould reject a reward arriving over the wire: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a reward arriving over the wire.", success)
		}
	}
}

func Test_MiningCancellation(t *testing.T) {
	t.Log("Given the need to abort an in-flight proof search.")
	{
		miner := newWallet(t)

		// A high difficulty keeps the search running until the cancellation
		// is observed.
		st := newState(t, miner, 16)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := st.Mine(ctx); err == nil {
			t.Errorf("\t%s\tShould abort a cancelled mining call.", failed)
		} else {
			t.Logf("\t%s\tShould abort a cancelled mining call: %v", success, err)
		}

		if st.ChainLength() != 1 {
			t.Errorf("\t%s\tShould not have extended the chain, got length %d.", failed, st.ChainLength())
		} else {
			t.Logf("\t%s\tShould not have extended the chain.", success)
		}
	}
}

func Test_InvalidBlockKeepsMining(t *testing.T) {
	t.Log("Given the need to keep an in-flight proof search alive when a forged block arrives.")
	{
		miner := newWallet(t)

		var evMu sync.Mutex
		var events []string

		db, err := store.New(t.TempDir())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
		}

		// A high difficulty keeps the search running until it is told to stop.
		st, err := state.New(state.Config{
			Wallet:     miner,
			Host:       "localhost:9080",
			Store:      db,
			Difficulty: 16,
			EvHandler: func(v string, args ...any) {
				evMu.Lock()
				events = append(events, fmt.Sprintf(v, args...))
				evMu.Unlock()
			},
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		t.Cleanup(func() { st.Shutdown() })

		seen := func(prefix string) bool {
			evMu.Lock()
			defer evMu.Unlock()
			for _, ev := range events {
				if strings.HasPrefix(ev, prefix) {
					return true
				}
			}
			return false
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := st.Mine(ctx)
			done <- err
		}()

		deadline := time.Now().Add(5 * time.Second)
		for !seen("state: Mine: MINING: perform POW") {
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould have started the proof search.", failed)
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Logf("\t%s\tShould have started the proof search.", success)

		// The forged block carries the next expected index but a garbage proof.
		forged := state.BlockMessage{
			Block: record.Block{
				Index:        1,
				PreviousHash: "0xforged",
				MerkleRoot:   "0xforged",
				Proof:        1,
				Timestamp:    1,
			},
			Transactions: []record.Transaction{record.NewRewardTransaction("thief", 10, 1)},
		}

		if err := st.ReceiveBlock(forged); !errors.Is(err, state.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould reject the forged block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject the forged block.", success)

		if seen("state: cancelActiveMining") {
			t.Errorf("\t%s\tShould not have signaled a mining cancel.", failed)
		} else {
			t.Logf("\t%s\tShould not have signaled a mining cancel.", success)
		}

		// The search is still running and only our own cancel ends it.
		cancel()
		if err := <-done; err == nil {
			t.Errorf("\t%s\tShould have aborted the search on the caller's cancel.", failed)
		} else {
			t.Logf("\t%s\tShould have aborted the search on the caller's cancel: %v", success, err)
		}
	}
}

// =============================================================================

func Test_ReceiveBlock(t *testing.T) {
	t.Log("Given the need to ingest blocks broadcast by peers.")
	{
		// Node A mines a block; node B receives it.
		minerA := newWallet(t)
		stA := newState(t, minerA, 1)
		stB := newState(t, nil, 1)

		block, err := stA.Mine(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine on node A: %v", failed, err)
		}

		txs := stA.MinedTransactions()
		if len(txs) != 1 || !txs[len(txs)-1].IsReward() {
			t.Fatalf("\t%s\tShould have the reward transaction mined on node A.", failed)
		}

		msg := state.BlockMessage{Block: block, Transactions: txs}

		if err := stB.ReceiveBlock(msg); err != nil {
			t.Fatalf("\t%s\tShould ingest the next expected block: %v", failed, err)
		}
		t.Logf("\t%s\tShould ingest the next expected block.", success)

		if stB.ChainLength() != 2 {
			t.Errorf("\t%s\tShould have a chain of length 2, got %d.", failed, stB.ChainLength())
		}
		if got := stB.BalanceOf(minerA.AccountID()); got != state.DefaultMiningReward {
			t.Errorf("\t%s\tShould credit the peer's mining reward, got %f.", failed, got)
		} else {
			t.Logf("\t%s\tShould credit the peer's mining reward.", success)
		}

		if err := stB.ReceiveBlock(msg); !errors.Is(err, state.ErrStaleBlock) {
			t.Errorf("\t%s\tShould reject the same block as stale: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject the same block as stale.", success)
		}

		ahead := msg
		ahead.Block.Index = 5
		if err := stB.ReceiveBlock(ahead); !errors.Is(err, state.ErrChainForked) {
			t.Errorf("\t%s\tShould flag a block from a longer chain: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould flag a block from a longer chain.", success)
		}
		if !stB.ConflictPending() {
			t.Errorf("\t%s\tShould have raised the conflict flag.", failed)
		} else {
			t.Logf("\t%s\tShould have raised the conflict flag.", success)
		}

		stB.ClearConflict()

		// A block that does not link to the local tip must be rejected even
		// when its index is the next expected one.
		bogus := msg
		bogus.Block.Index = stB.ChainLength()
		bogus.Block.PreviousHash = "0xbogus"
		if err := stB.ReceiveBlock(bogus); !errors.Is(err, state.ErrInvalidBlock) {
			t.Errorf("\t%s\tShould reject a block that does not link to the tip: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a block that does not link to the tip.", success)
		}

		noReward := msg
		noReward.Block.Index = stB.ChainLength()
		noReward.Transactions = nil
		if err := stB.ReceiveBlock(noReward); !errors.Is(err, state.ErrInvalidBlock) {
			t.Errorf("\t%s\tShould reject a block without a reward transaction: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a block without a reward transaction.", success)
		}
	}
}

// =============================================================================

// peerServer serves another node's chain the way the private API does.
func peerServer(t *testing.T, st *state.State) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/peer/chain", func(w http.ResponseWriter, r *http.Request) {
		resp := state.ChainResponse{
			Chain:             st.Chain(),
			MinedTransactions: st.MinedTransactions(),
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/v1/peer/tx/list", func(w http.ResponseWriter, r *http.Request) {
		txs, err := st.AllTransactions()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := struct {
			Transactions []record.Transaction `json:"transactions"`
		}{
			Transactions: txs,
		}
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}

func Test_Resolve(t *testing.T) {
	t.Log("Given the need to adopt the longest valid peer chain.")
	{
		minerA := newWallet(t)
		stA := newState(t, minerA, 1)
		stB := newState(t, nil, 1)

		for i := 0; i < 2; i++ {
			if _, err := stA.Mine(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine on node A: %v", failed, err)
			}
		}

		host := peerServer(t, stA)
		if _, err := stB.AddPeer(host); err != nil {
			t.Fatalf("\t%s\tShould be able to register the peer: %v", failed, err)
		}

		replaced, err := stB.Resolve(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to resolve: %v", failed, err)
		}
		if !replaced {
			t.Fatalf("\t%s\tShould have adopted the longer chain.", failed)
		}
		t.Logf("\t%s\tShould have adopted the longer chain.", success)

		if stB.ChainLength() != stA.ChainLength() {
			t.Errorf("\t%s\tShould match the peer chain length, got %d.", failed, stB.ChainLength())
		} else {
			t.Logf("\t%s\tShould match the peer chain length.", success)
		}
		if got := stB.BalanceOf(minerA.AccountID()); got != 2*state.DefaultMiningReward {
			t.Errorf("\t%s\tShould reproduce the peer's balances, got %f.", failed, got)
		} else {
			t.Logf("\t%s\tShould reproduce the peer's balances.", success)
		}

		// Equal length is a tie and ties keep the local chain.
		replaced, err = stB.Resolve(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to resolve again: %v", failed, err)
		}
		if replaced {
			t.Errorf("\t%s\tShould keep the local chain on a tie.", failed)
		} else {
			t.Logf("\t%s\tShould keep the local chain on a tie.", success)
		}

		if stB.ConflictPending() {
			t.Errorf("\t%s\tShould have cleared the conflict flag.", failed)
		} else {
			t.Logf("\t%s\tShould have cleared the conflict flag.", success)
		}
	}
}

func Test_ResolveRejectsInvalidChain(t *testing.T) {
	t.Log("Given the need to reject a longer but invalid peer chain.")
	{
		stB := newState(t, nil, 1)

		// A fabricated chain that is longer but fails the linkage audit.
		badChain := []record.Block{record.NewGenesisBlock()}
		for i := 1; i < 4; i++ {
			block, err := record.ToBlock(uint64(i), "0xbogus", "0xbogus", uint64(i), float64(i))
			if err != nil {
				t.Fatalf("\t%s\tShould be able to fabricate a block: %v", failed, err)
			}
			badChain = append(badChain, block)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/v1/peer/chain", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(state.ChainResponse{Chain: badChain})
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		if _, err := stB.AddPeer(strings.TrimPrefix(srv.URL, "http://")); err != nil {
			t.Fatalf("\t%s\tShould be able to register the peer: %v", failed, err)
		}

		replaced, err := stB.Resolve(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to resolve: %v", failed, err)
		}
		if replaced {
			t.Errorf("\t%s\tShould have kept the local chain.", failed)
		} else {
			t.Logf("\t%s\tShould have kept the local chain.", success)
		}

		if stB.ChainLength() != 1 {
			t.Errorf("\t%s\tShould still hold only the genesis block, got %d.", failed, stB.ChainLength())
		} else {
			t.Logf("\t%s\tShould still hold only the genesis block.", success)
		}
	}
}

func Test_ResolveKeepsAdvancedChain(t *testing.T) {
	t.Log("Given the need to keep a local chain that advances during resolution.")
	{
		minerA := newWallet(t)
		stA := newState(t, minerA, 1)
		minerB := newWallet(t)
		stB := newState(t, minerB, 1)

		for i := 0; i < 2; i++ {
			if _, err := stA.Mine(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine on node A: %v", failed, err)
			}
		}

		chain := stA.Chain()
		mined := stA.MinedTransactions()

		// The peer hands out a longer chain, but the local node catches up
		// before the response lands, so the fetched chain is no longer
		// strictly longer by the time the replacement would commit.
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/peer/chain", func(w http.ResponseWriter, r *http.Request) {
			for stB.ChainLength() < uint64(len(chain)) {
				if _, err := stB.Mine(context.Background()); err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
			}
			json.NewEncoder(w).Encode(state.ChainResponse{Chain: chain, MinedTransactions: mined})
		})
		mux.HandleFunc("/v1/peer/tx/list", func(w http.ResponseWriter, r *http.Request) {
			resp := struct {
				Transactions []record.Transaction `json:"transactions"`
			}{
				Transactions: mined,
			}
			json.NewEncoder(w).Encode(resp)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		if _, err := stB.AddPeer(strings.TrimPrefix(srv.URL, "http://")); err != nil {
			t.Fatalf("\t%s\tShould be able to register the peer: %v", failed, err)
		}

		replaced, err := stB.Resolve(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to resolve: %v", failed, err)
		}
		if replaced {
			t.Errorf("\t%s\tShould keep the chain that caught up locally.", failed)
		} else {
			t.Logf("\t%s\tShould keep the chain that caught up locally.", success)
		}

		if got := stB.BalanceOf(minerB.AccountID()); got != 2*state.DefaultMiningReward {
			t.Errorf("\t%s\tShould still hold the locally mined rewards, got %f.", failed, got)
		} else {
			t.Logf("\t%s\tShould still hold the locally mined rewards.", success)
		}
	}
}

// =============================================================================

func Test_Peers(t *testing.T) {
	t.Log("Given the need to manage the known peer set.")
	{
		st := newState(t, nil, 1)

		added, err := st.AddPeer("localhost:9180")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to add a peer: %v", failed, err)
		}
		if !added {
			t.Errorf("\t%s\tShould report the first add as new.", failed)
		} else {
			t.Logf("\t%s\tShould report the first add as new.", success)
		}

		added, err = st.AddPeer("localhost:9180")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to re-add a peer: %v", failed, err)
		}
		if added {
			t.Errorf("\t%s\tShould report a duplicate add as not new.", failed)
		} else {
			t.Logf("\t%s\tShould report a duplicate add as not new.", success)
		}

		if _, err := st.AddPeer(""); err == nil {
			t.Errorf("\t%s\tShould reject an empty peer address.", failed)
		} else {
			t.Logf("\t%s\tShould reject an empty peer address.", success)
		}

		if len(st.KnownPeers()) != 1 {
			t.Errorf("\t%s\tShould know exactly one peer.", failed)
		} else {
			t.Logf("\t%s\tShould know exactly one peer.", success)
		}

		removed, err := st.RemovePeer("localhost:9180")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to remove a peer: %v", failed, err)
		}
		if !removed {
			t.Errorf("\t%s\tShould report the removal.", failed)
		} else {
			t.Logf("\t%s\tShould report the removal.", success)
		}

		if len(st.KnownPeers()) != 0 {
			t.Errorf("\t%s\tShould know no peers after removal.", failed)
		} else {
			t.Logf("\t%s\tShould know no peers after removal.", success)
		}
	}
}
