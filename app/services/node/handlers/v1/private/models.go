package private

import (
	"github.com/robinjongeneel23/blockchain/business/sys/validate"
)

type peerTx struct {
	Sender    string  `json:"sender" validate:"required"`
	Recipient string  `json:"recipient" validate:"required"`
	Signature string  `json:"signature" validate:"required"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Time      float64 `json:"time"`
}

// Validate checks the data in the model is considered clean.
func (app peerTx) Validate() error {
	if err := validate.Check(app); err != nil {
		return err
	}
	return nil
}
