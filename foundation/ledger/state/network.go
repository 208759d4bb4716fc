package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

const baseURL = "http://%s/v1/peer"

// errPeerConflict signals that a peer answered a block broadcast with a
// chain-length disagreement.
var errPeerConflict = errors.New("peer signalled a chain conflict")

// NetSendTransactionToPeers shares an admitted transaction with the known
// peers. A failure or unreachable peer is skipped.
func (s *State) NetSendTransactionToPeers(tx record.Transaction) {
	s.evHandler("state: NetSendTransactionToPeers: started")
	defer s.evHandler("state: NetSendTransactionToPeers: completed")

	for _, peer := range s.KnownPeers() {
		url := fmt.Sprintf("%s/tx", fmt.Sprintf(baseURL, peer.ID))

		if err := send(context.Background(), http.MethodPost, url, tx, nil); err != nil {
			s.evHandler("state: NetSendTransactionToPeers: WARNING: peer[%s]: %s", peer.ID, err)
		}
	}
}

// NetSendBlockToPeers shares a freshly mined block with the known peers. A
// peer answering with a conflict raises the local conflict flag so the next
// resolution pass reconciles the chains.
func (s *State) NetSendBlockToPeers(msg BlockMessage) {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	for _, peer := range s.KnownPeers() {
		url := fmt.Sprintf("%s/block", fmt.Sprintf(baseURL, peer.ID))

		err := send(context.Background(), http.MethodPost, url, msg, nil)
		switch {
		case errors.Is(err, errPeerConflict):
			s.evHandler("state: NetSendBlockToPeers: peer[%s] declined: needs resolving", peer.ID)
			s.RaiseConflict()
		case err != nil:
			s.evHandler("state: NetSendBlockToPeers: WARNING: peer[%s]: %s", peer.ID, err)
		}
	}
}

// NetRequestChain fetches a peer's chain snapshot and mined transactions.
func (s *State) NetRequestChain(ctx context.Context, peer record.PeerNode) (ChainResponse, error) {
	url := fmt.Sprintf("%s/chain", fmt.Sprintf(baseURL, peer.ID))

	var resp ChainResponse
	if err := send(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return ChainResponse{}, err
	}

	return resp, nil
}

// NetRequestTransactions fetches a peer's full transaction history, used to
// repopulate this node after adopting the peer's chain.
func (s *State) NetRequestTransactions(ctx context.Context, peer record.PeerNode) ([]record.Transaction, error) {
	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, peer.ID))

	var resp struct {
		Transactions []record.Transaction `json:"transactions"`
	}
	if err := send(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	return resp.Transactions, nil
}

// =============================================================================

// send performs an HTTP exchange with a peer, retrying transient failures
// with exponential backoff. Validation responses from the peer are not
// retried.
func send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	op := func() error {
		var body io.Reader
		if dataSend != nil {
			data, err := json.Marshal(dataSend)
			if err != nil {
				return backoff.Permanent(err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if dataSend != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		client := http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusConflict:
			return backoff.Permanent(errPeerConflict)

		case resp.StatusCode >= 400:
			msg, err := io.ReadAll(resp.Body)
			if err != nil {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(errors.New(string(msg)))
		}

		if dataRecv != nil {
			if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
				return backoff.Permanent(err)
			}
		}

		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
