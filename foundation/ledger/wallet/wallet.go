// Package wallet creates, loads, and holds the node's key pair and provides
// the signing and verification primitive for transactions. Participants are
// identified by the hex encoding of their uncompressed public key.
package wallet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// Wallet holds the key pair used to sign this node's transactions.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	accountID  string
}

// New generates a fresh key pair.
func New() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	return fromKey(privateKey), nil
}

// Load reads a private key from the specified ECDSA key file.
func Load(path string) (*Wallet, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("loading private key from %q: %w", path, err)
	}

	return fromKey(privateKey), nil
}

// Save writes the private key to the specified file.
func (w *Wallet) Save(path string) error {
	return crypto.SaveECDSA(path, w.privateKey)
}

// AccountID returns the participant identifier derived from the public key.
func (w *Wallet) AccountID() string {
	return w.accountID
}

// SignTransaction constructs and signs an open transaction from this wallet
// to the specified recipient.
func (w *Wallet) SignTransaction(recipient string, amount float64, timestamp float64) (record.Transaction, error) {
	tx, err := record.NewTransaction(w.accountID, recipient, "unsigned", amount, timestamp)
	if err != nil {
		return record.Transaction{}, err
	}

	digest := sha256.Sum256(tx.Payload())
	sig, err := crypto.Sign(digest[:], w.privateKey)
	if err != nil {
		return record.Transaction{}, fmt.Errorf("signing transaction: %w", err)
	}

	tx.Signature = hex.EncodeToString(sig)

	return tx, nil
}

func fromKey(privateKey *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		privateKey: privateKey,
		accountID:  hex.EncodeToString(crypto.FromECDSAPub(&privateKey.PublicKey)),
	}
}

// =============================================================================

// VerifyTransaction checks the transaction's signature over the canonical
// payload against the sender's public key. Reward transactions verify
// unconditionally. A malformed signature or an unknown sender key fails
// verification deterministically; it never panics.
func VerifyTransaction(tx record.Transaction) bool {
	if tx.IsReward() {
		return true
	}

	publicKey, err := hex.DecodeString(tx.Sender)
	if err != nil {
		return false
	}

	sig, err := hex.DecodeString(tx.Signature)
	if err != nil {
		return false
	}
	if len(sig) < crypto.RecoveryIDOffset {
		return false
	}

	digest := sha256.Sum256(tx.Payload())

	// Drop the recovery id; VerifySignature expects the 64 byte [R|S] form.
	return crypto.VerifySignature(publicKey, digest[:], sig[:crypto.RecoveryIDOffset])
}
