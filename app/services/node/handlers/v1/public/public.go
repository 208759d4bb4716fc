// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robinjongeneel23/blockchain/business/web/errs"
	"github.com/robinjongeneel23/blockchain/foundation/events"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/state"
	"github.com/robinjongeneel23/blockchain/foundation/web"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Balance returns the computed balance of the node's wallet.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	funds, err := h.State.Balance()
	if err != nil {
		if errors.Is(err, state.ErrNoWallet) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	account, err := h.State.AccountID()
	if err != nil {
		return err
	}

	resp := struct {
		Account string  `json:"account"`
		Funds   float64 `json:"funds"`
	}{
		Account: account,
		Funds:   funds,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BalanceByAccount returns the computed balance for any participant.
func (h Handlers) BalanceByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")
	if account == "" {
		return errs.NewTrusted(errors.New("no account specified"), http.StatusBadRequest)
	}

	resp := struct {
		Account string  `json:"account"`
		Funds   float64 `json:"funds"`
	}{
		Account: account,
		Funds:   h.State.BalanceOf(account),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTransaction signs a new transaction with the node's wallet and
// admits it into the open pool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var app submitTx
	if err := web.Decode(r, &app); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("submit transaction", "traceid", v.TraceID, "recipient", app.Recipient, "amount", app.Amount)

	tx, err := h.State.SubmitTransaction(app.Recipient, app.Amount)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoWallet):
			return errs.NewTrusted(err, http.StatusBadRequest)
		case errors.Is(err, state.ErrInsufficientFunds), errors.Is(err, state.ErrInvalidSignature), errors.Is(err, state.ErrDuplicateTx):
			return errs.NewTrusted(err, http.StatusBadRequest)
		default:
			return err
		}
	}

	funds, err := h.State.Balance()
	if err != nil {
		return err
	}

	resp := struct {
		Message     string  `json:"message"`
		Transaction any     `json:"transaction"`
		Funds       float64 `json:"funds"`
	}{
		Message:     "successfully added transaction",
		Transaction: tx,
		Funds:       funds,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// OpenTransactions returns the open transaction pool.
func (h Handlers) OpenTransactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.OpenTransactions(), http.StatusOK)
}

// Chain returns the local chain and the mined transaction set.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := state.ChainResponse{
		Chain:             h.State.Chain(),
		MinedTransactions: h.State.MinedTransactions(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mine creates the next block from the open pool. The call blocks until the
// proof-of-work search completes or is cancelled.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.State.ConflictPending() {
		return errs.NewTrusted(errors.New("resolve conflicts first, block not added"), http.StatusConflict)
	}

	block, err := h.State.Mine(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoWallet):
			return errs.NewTrusted(err, http.StatusBadRequest)
		case errors.Is(err, state.ErrInvalidSignature):
			return errs.NewTrusted(err, http.StatusConflict)
		case errors.Is(err, context.Canceled), errors.Is(err, state.ErrChainForked):
			return errs.NewTrusted(errors.New("mining was cancelled"), http.StatusConflict)
		default:
			return err
		}
	}

	funds, err := h.State.Balance()
	if err != nil {
		return err
	}

	resp := struct {
		Message string  `json:"message"`
		Block   any     `json:"block"`
		Funds   float64 `json:"funds"`
	}{
		Message: "block added successfully",
		Block:   block,
		Funds:   funds,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Resolve runs a longest-valid-chain pass over the known peers.
func (h Handlers) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	replaced, err := h.State.Resolve(r.Context())
	if err != nil {
		return err
	}

	msg := "local chain kept"
	if replaced {
		msg = "chain was replaced"
	}

	resp := struct {
		Message  string `json:"message"`
		Replaced bool   `json:"replaced"`
	}{
		Message:  msg,
		Replaced: replaced,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peer nodes.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		AllNodes any `json:"all_nodes"`
	}{
		AllNodes: h.State.KnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// AddPeer registers a peer node. A duplicate add is a no-op signalled to the
// caller, not an error.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app addPeer
	if err := web.Decode(r, &app); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	added, err := h.State.AddPeer(app.Node)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Message  string `json:"message"`
		AllNodes any    `json:"all_nodes"`
	}{
		AllNodes: h.State.KnownPeers(),
	}

	if !added {
		resp.Message = "node already present"
		return web.Respond(ctx, w, resp, http.StatusAccepted)
	}

	resp.Message = "node added successfully"
	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// RemovePeer deregisters a peer node.
func (h Handlers) RemovePeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	node := web.Param(r, "node")
	if node == "" {
		return errs.NewTrusted(errors.New("no node specified"), http.StatusBadRequest)
	}

	removed, err := h.State.RemovePeer(node)
	if err != nil {
		return err
	}

	if !removed {
		return errs.NewTrusted(errors.New("node not found"), http.StatusNotFound)
	}

	resp := struct {
		Message string `json:"message"`
	}{
		Message: "node removed",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Self returns this node's own network address and wallet account.
func (h Handlers) Self(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account, err := h.State.AccountID()
	if err != nil && !errors.Is(err, state.ErrNoWallet) {
		return err
	}

	resp := struct {
		Host    string `json:"host"`
		Account string `json:"account,omitempty"`
	}{
		Host:    h.State.Host(),
		Account: account,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
