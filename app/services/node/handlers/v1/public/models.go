package public

import (
	"github.com/robinjongeneel23/blockchain/business/sys/validate"
)

// submitTx is the request model for submitting a new transaction signed by
// this node's wallet.
type submitTx struct {
	Recipient string  `json:"recipient" validate:"required"`
	Amount    float64 `json:"amount" validate:"gte=0"`
}

// Validate checks the data in the model is considered clean.
func (app submitTx) Validate() error {
	return validate.Check(app)
}

// addPeer is the request model for registering a peer node.
type addPeer struct {
	Node string `json:"node" validate:"required"`
}

// Validate checks the data in the model is considered clean.
func (app addPeer) Validate() error {
	return validate.Check(app)
}
