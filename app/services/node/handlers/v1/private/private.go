// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/robinjongeneel23/blockchain/business/web/errs"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/state"
	"github.com/robinjongeneel23/blockchain/foundation/web"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitPeerTransaction admits a transaction broadcast by a peer node.
func (h Handlers) SubmitPeerTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var app peerTx
	if err := web.Decode(r, &app); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	tx, err := record.NewTransaction(app.Sender, app.Recipient, app.Signature, app.Amount, app.Time)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("peer transaction", "traceid", v.TraceID, "tx", tx)

	if err := h.State.SubmitPeerTransaction(tx); err != nil {
		switch {
		case errors.Is(err, state.ErrInvalidSignature), errors.Is(err, state.ErrInsufficientFunds), errors.Is(err, state.ErrDuplicateTx):
			return errs.NewTrusted(err, http.StatusBadRequest)
		default:
			return err
		}
	}

	resp := struct {
		Message string `json:"message"`
	}{
		Message: "successfully added transaction",
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// ReceiveBlock processes a block broadcast by a peer node. The block index
// dictates the outcome: the next expected index is ingested, a higher index
// signals a conflict requiring resolution, and a lower index is stale.
func (h Handlers) ReceiveBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var msg state.BlockMessage
	if err := web.Decode(r, &msg); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("peer block", "traceid", v.TraceID, "block", msg.Block.Index, "txs", len(msg.Transactions))

	if err := h.State.ReceiveBlock(msg); err != nil {
		switch {
		case errors.Is(err, state.ErrChainForked):
			resp := struct {
				Message string `json:"message"`
			}{
				Message: "peer chain differs from local chain, resolving",
			}
			return web.Respond(ctx, w, resp, http.StatusOK)

		case errors.Is(err, state.ErrStaleBlock):
			return errs.NewTrusted(err, http.StatusConflict)

		case errors.Is(err, state.ErrInvalidBlock):
			return errs.NewTrusted(err, http.StatusConflict)

		default:
			return err
		}
	}

	resp := struct {
		Message string `json:"message"`
	}{
		Message: "block added",
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Chain returns the local chain snapshot and the mined transaction set.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := state.ChainResponse{
		Chain:             h.State.Chain(),
		MinedTransactions: h.State.MinedTransactions(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Transactions returns the full local transaction history. A peer adopting
// this node's chain uses it to repopulate itself.
func (h Handlers) Transactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs, err := h.State.AllTransactions()
	if err != nil {
		return err
	}

	resp := struct {
		Transactions []record.Transaction `json:"transactions"`
	}{
		Transactions: txs,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
