// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/robinjongeneel23/blockchain/app/services/node/handlers/v1/private"
	"github.com/robinjongeneel23/blockchain/app/services/node/handlers/v1/public"
	"github.com/robinjongeneel23/blockchain/foundation/events"
	"github.com/robinjongeneel23/blockchain/foundation/ledger/state"
	"github.com/robinjongeneel23/blockchain/foundation/web"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/balance", pbl.Balance)
	app.Handle(http.MethodGet, version, "/balance/:account", pbl.BalanceByAccount)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/tx/open/list", pbl.OpenTransactions)
	app.Handle(http.MethodGet, version, "/chain", pbl.Chain)
	app.Handle(http.MethodPost, version, "/mine", pbl.Mine)
	app.Handle(http.MethodPost, version, "/resolve", pbl.Resolve)
	app.Handle(http.MethodGet, version, "/node/list", pbl.Peers)
	app.Handle(http.MethodGet, version, "/node/self", pbl.Self)
	app.Handle(http.MethodPost, version, "/node/add", pbl.AddPeer)
	app.Handle(http.MethodDelete, version, "/node/remove/:node", pbl.RemovePeer)
}

// PrivateRoutes binds all the version 1 node to node routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodPost, version, "/peer/tx", prv.SubmitPeerTransaction)
	app.Handle(http.MethodPost, version, "/peer/block", prv.ReceiveBlock)
	app.Handle(http.MethodGet, version, "/peer/chain", prv.Chain)
	app.Handle(http.MethodGet, version, "/peer/tx/list", prv.Transactions)
}
